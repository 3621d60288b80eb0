// Package storage persists finalization records written by the relay after
// every confirmed callback. The records are audit data only; the relay never
// reads them back to decide what to process.
package storage

import (
	"context"
	"errors"
)

// ErrDuplicate 表示同一笔回写交易已经被记录过。
var ErrDuplicate = errors.New("回写记录已存在")

// Finalization 描述一次成功的预言机回写。
type Finalization struct {
	ID              string `json:"id"`
	Request         string `json:"request"`
	User            string `json:"user"`
	ChatContext     string `json:"chat_context"`
	CallbackProgram string `json:"callback_program"`
	Prompt          string `json:"prompt"`
	Response        string `json:"response"`
	Signature       string `json:"signature"`
	ModelAttempts   int    `json:"model_attempts"`
	SubmitAttempts  int    `json:"submit_attempts"`
	CreatedAt       int64  `json:"created_at"`
}

// Journal 抽象回写记录的持久化接口。
type Journal interface {
	Record(ctx context.Context, entry Finalization) error
	Recent(ctx context.Context, limit int) ([]Finalization, error)
	Close() error
}
