package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// RelayCollector counts relay pipeline events.
type RelayCollector struct {
	mu            sync.Mutex
	notifications uint64
	skipped       map[string]uint64
	model         map[string]uint64
	submit        map[string]uint64
	finalized     uint64
	restarts      uint64
	latency       *histogram
}

// NewRelayCollector 创建独立的中继指标集合。
func NewRelayCollector() *RelayCollector {
	return &RelayCollector{
		skipped: make(map[string]uint64),
		model:   make(map[string]uint64),
		submit:  make(map[string]uint64),
		latency: newHistogram(),
	}
}

var relayCollector = NewRelayCollector()

// Relay returns the process wide relay collector.
func Relay() *RelayCollector { return relayCollector }

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// NotificationReceived 记录一条进入队列消费端的通知。
func (c *RelayCollector) NotificationReceived() {
	c.mu.Lock()
	c.notifications++
	c.mu.Unlock()
}

// NotificationSkipped 记录被跳过的通知及原因。
func (c *RelayCollector) NotificationSkipped(reason string) {
	c.mu.Lock()
	c.skipped[reason]++
	c.mu.Unlock()
}

// ModelAttempt 记录一次模型调用。
func (c *RelayCollector) ModelAttempt(err error) {
	c.mu.Lock()
	c.model[outcome(err)]++
	c.mu.Unlock()
}

// SubmitAttempt 记录一次交易提交。
func (c *RelayCollector) SubmitAttempt(err error) {
	c.mu.Lock()
	c.submit[outcome(err)]++
	c.mu.Unlock()
}

// Finalized 记录一次成功回写及其端到端耗时。
func (c *RelayCollector) Finalized(elapsed time.Duration) {
	c.mu.Lock()
	c.finalized++
	c.latency.observe(elapsed.Seconds())
	c.mu.Unlock()
}

// Restarted 记录一次外层循环重启。
func (c *RelayCollector) Restarted() {
	c.mu.Lock()
	c.restarts++
	c.mu.Unlock()
}

// Render writes the collector in Prometheus text exposition format.
func (c *RelayCollector) Render(b *strings.Builder) {
	c.mu.Lock()
	notifications, finalized, restarts := c.notifications, c.finalized, c.restarts
	skipped := copyCounts(c.skipped)
	model := copyCounts(c.model)
	submit := copyCounts(c.submit)
	latency := c.latency.clone()
	c.mu.Unlock()

	writeHeader(b, "oracle_relay_notifications_total", "counter", "Inference account notifications consumed by the relay.")
	fmt.Fprintf(b, "oracle_relay_notifications_total %d\n", notifications)

	writeHeader(b, "oracle_relay_skipped_total", "counter", "Notifications skipped without contacting the model.")
	renderLabelled(b, "oracle_relay_skipped_total", "reason", skipped)

	writeHeader(b, "oracle_relay_model_attempts_total", "counter", "Model backend calls by result.")
	renderLabelled(b, "oracle_relay_model_attempts_total", "result", model)

	writeHeader(b, "oracle_relay_submit_attempts_total", "counter", "Finalize transaction submissions by result.")
	renderLabelled(b, "oracle_relay_submit_attempts_total", "result", submit)

	writeHeader(b, "oracle_relay_finalized_total", "counter", "Requests finalized on the ledger.")
	fmt.Fprintf(b, "oracle_relay_finalized_total %d\n", finalized)

	writeHeader(b, "oracle_relay_restarts_total", "counter", "Relay loop restarts after an escalated error.")
	fmt.Fprintf(b, "oracle_relay_restarts_total %d\n", restarts)

	writeHeader(b, "oracle_relay_finalize_duration_seconds", "histogram", "Time from notification to confirmed callback.")
	latency.render(b, "oracle_relay_finalize_duration_seconds", "")
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func renderLabelled(b *strings.Builder, name, label string, values map[string]uint64) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s{%s=\"%s\"} %d\n", name, label, escape(k), values[k])
	}
}
