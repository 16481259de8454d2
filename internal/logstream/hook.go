package logstream

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oriys/nimbus-functions/internal/domain"
)

// Hook 是把日志转发到 Hub 的 logrus 钩子。
type Hook struct {
	hub *Hub
}

// NewHook 创建转发钩子。
func NewHook(hub *Hub) *Hook {
	return &Hook{hub: hub}
}

// Levels 在所有级别触发。
func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire 转换并广播日志；没有订阅者时直接返回。
func (h *Hook) Fire(entry *logrus.Entry) error {
	if h.hub.Subscribers() == 0 {
		return nil
	}
	h.hub.Publish(toLogEntry(entry))
	return nil
}

func toLogEntry(entry *logrus.Entry) domain.LogEntry {
	out := domain.LogEntry{
		Timestamp:    entry.Time,
		Level:        levelName(entry),
		FunctionName: stringField(entry.Data, "function"),
		InvocationID: stringField(entry.Data, "invocation_id"),
		Trigger:      stringField(entry.Data, "trigger"),
		Message:      entry.Message,
	}
	if err, ok := entry.Data[logrus.ErrorKey].(error); ok && err != nil {
		out.Error = err.Error()
	}
	return out
}

// levelName 返回级别名称，带 severity=critical 的 fatal 日志显示为 critical。
func levelName(entry *logrus.Entry) string {
	if entry.Level == logrus.FatalLevel && entry.Data["severity"] == string(domain.LogLevelCritical) {
		return string(domain.LogLevelCritical)
	}
	return entry.Level.String()
}

func stringField(data logrus.Fields, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
