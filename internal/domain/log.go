package domain

import (
	"strings"
	"time"
)

// LogLevel 表示处理函数输出日志的严重级别。
type LogLevel string

// 支持的日志级别，按严重程度递增
const (
	LogLevelDebug    LogLevel = "debug"
	LogLevelInfo     LogLevel = "info"
	LogLevelWarning  LogLevel = "warning"
	LogLevelError    LogLevel = "error"
	LogLevelCritical LogLevel = "critical"
)

// ParseLogLevel 解析日志级别（不区分大小写）。
// 未知或空值回退为 info。
func ParseLogLevel(s string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LogLevelDebug:
		return LogLevelDebug
	case LogLevelWarning:
		return LogLevelWarning
	case LogLevelError:
		return LogLevelError
	case LogLevelCritical:
		return LogLevelCritical
	default:
		return LogLevelInfo
	}
}

// Upper 返回大写形式，如 WARNING。
func (l LogLevel) Upper() string {
	return strings.ToUpper(string(l))
}

// LogEntry 表示推送给实时日志订阅者的一条日志。
type LogEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	Level        string    `json:"level"`
	FunctionName string    `json:"function,omitempty"`
	InvocationID string    `json:"invocation_id,omitempty"`
	Trigger      string    `json:"trigger,omitempty"`
	Message      string    `json:"message"`
	Error        string    `json:"error,omitempty"`
}
