// Package alerting 把中继周期失败推送到日志、Slack 或钉钉等渠道。
package alerting
