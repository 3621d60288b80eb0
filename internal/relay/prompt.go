package relay

// ComposePrompt 把对话上下文与请求文本拼接为发送给模型的提示词。
func ComposePrompt(context, request string) string {
	return context + ", " + request
}
