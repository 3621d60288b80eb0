// Package registry 实现推理请求登记与回调路由程序。
//
// 用户创建对话上下文与推理请求；预言机身份读取请求、获得模型响应后调用
// callback_from_llm，程序把请求标记为已处理，并以配置账户的派生签名调用
// 请求中登记的回调程序。
package registry
