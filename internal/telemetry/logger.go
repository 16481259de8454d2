package telemetry

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/oriys/nimbus-functions/internal/config"
)

// NewLogger 根据日志配置创建进程级的 Logrus Logger，并挂载追踪上下文钩子。
// 处理函数共享这个 Logger，每次调用通过 WithFields 派生自己的条目。
func NewLogger(cfg config.LoggingConfig, out io.Writer) *logrus.Logger {
	if out == nil {
		out = os.Stdout
	}
	logger := logrus.New()
	logger.SetOutput(out)
	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	SetLevel(logger, cfg.Level)
	logger.AddHook(NewLogrusHook())
	return logger
}

// SetLevel 设置日志级别，无法识别的级别回退为 info。
// 配置热更新时也通过它调整级别。
func SetLevel(logger *logrus.Logger, level string) {
	if strings.EqualFold(level, "warning") {
		level = "warn"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
}

// LogrusHook 将条目上下文中的追踪信息（trace_id、span_id）写入日志字段。
type LogrusHook struct{}

// NewLogrusHook 创建追踪上下文注入钩子。
func NewLogrusHook() *LogrusHook {
	return &LogrusHook{}
}

// Levels 在所有级别触发。
func (h *LogrusHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire 仅在条目携带有效 Span 时添加字段。
func (h *LogrusHook) Fire(entry *logrus.Entry) error {
	if entry.Context == nil {
		return nil
	}
	sc := trace.SpanFromContext(entry.Context).SpanContext()
	if !sc.IsValid() {
		return nil
	}
	entry.Data["trace_id"] = sc.TraceID().String()
	entry.Data["span_id"] = sc.SpanID().String()
	if sc.IsSampled() {
		entry.Data["trace_sampled"] = true
	}
	return nil
}
