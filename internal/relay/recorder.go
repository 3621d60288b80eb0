package relay

import "time"

// Recorder 接收流水线事件，用于指标统计。
type Recorder interface {
	NotificationReceived()
	NotificationSkipped(reason string)
	ModelAttempt(err error)
	SubmitAttempt(err error)
	Finalized(elapsed time.Duration)
	Restarted()
}

type nopRecorder struct{}

func (nopRecorder) NotificationReceived() {}
func (nopRecorder) NotificationSkipped(string) {}
func (nopRecorder) ModelAttempt(error) {}
func (nopRecorder) SubmitAttempt(error) {}
func (nopRecorder) Finalized(time.Duration) {}
func (nopRecorder) Restarted() {}

// 跳过原因。
const (
	SkipUndecodable = "undecodable"
	SkipProcessed   = "processed"
	SkipChatContext = "chat_context"
)
