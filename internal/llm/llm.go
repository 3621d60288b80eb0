package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse 表示模型返回了结构合法但没有文本的响应。
var ErrEmptyResponse = errors.New("模型响应中没有文本")

// Client 定义了调用大模型的统一接口。实现需要是无状态的，可被重复调用。
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ClientFunc 让普通函数满足 Client 接口，便于测试与组合。
type ClientFunc func(ctx context.Context, prompt string) (string, error)

// Complete 调用函数本身。
func (f ClientFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
