package functions

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/sirupsen/logrus"

	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/domain"
)

//go:embed templates/logdemo.html.tmpl
var templateFS embed.FS

var logDemoPage = template.Must(
	template.New("logdemo.html.tmpl").Funcs(sprig.FuncMap()).ParseFS(templateFS, "templates/logdemo.html.tmpl"),
)

const (
	defaultDemoMessage = "This is a test log message"
	timestampLayout    = "2006-01-02 15:04:05"
	flavorRecordCount  = 3
)

var (
	flavorTypes    = []string{"DEBUG", "INFO", "WARNING", "ERROR"}
	flavorActions  = []string{"User login", "Data processed", "Authentication attempt", "Database query", "File operation"}
	flavorStatuses = []string{"successful", "failed", "partial", "timeout", "denied"}
)

// Randomizer 是日志演示使用的随机数来源，Intn 返回 [0, n) 内的整数。
type Randomizer interface {
	Intn(n int) int
}

// lockedRand 是可并发使用的 math/rand 包装。
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRandomizer 创建一个以 seed 为种子的并发安全随机数来源。
func NewRandomizer(seed int64) Randomizer {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// LoggingDemo 按请求指定的级别输出一条日志，再附带三条随机的示例日志，并返回说明页。
type LoggingDemo struct {
	rng           Randomizer
	now           func() time.Time
	appName       string
	resourceGroup string
}

// LoggingDemoOption 配置 LoggingDemo。
type LoggingDemoOption func(*LoggingDemo)

// WithRandomizer 替换随机数来源。
func WithRandomizer(r Randomizer) LoggingDemoOption {
	return func(d *LoggingDemo) { d.rng = r }
}

// WithClock 替换时钟。
func WithClock(now func() time.Time) LoggingDemoOption {
	return func(d *LoggingDemo) { d.now = now }
}

// NewLoggingDemo 创建日志演示处理函数。
func NewLoggingDemo(cfg config.FunctionsConfig, opts ...LoggingDemoOption) *LoggingDemo {
	d := &LoggingDemo{
		rng:           NewRandomizer(time.Now().UnixNano()),
		now:           time.Now,
		appName:       cfg.LogsAppName,
		resourceGroup: cfg.LogsResourceGroup,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type logDemoView struct {
	Timestamp     string
	Level         string
	Message       string
	Function      string
	AppName       string
	ResourceGroup string
}

// Handle 实现 HTTP 处理函数。该函数总是返回 200。
func (d *LoggingDemo) Handle(_ context.Context, r *http.Request, log *logrus.Entry) (*domain.Response, error) {
	query := r.URL.Query()
	requested := strings.ToLower(query.Get("level"))
	if requested == "" {
		requested = string(domain.LogLevelInfo)
	}
	message := query.Get("message")
	if message == "" {
		message = defaultDemoMessage
	}

	timestamp := d.now().Format(timestampLayout)
	level := domain.ParseLogLevel(requested)
	logAtLevel(log, level, fmt.Sprintf("[%s] %s: %s", timestamp, level.Upper(), message))

	for i := 0; i < flavorRecordCount; i++ {
		d.emitFlavorRecord(log, timestamp)
	}

	var page bytes.Buffer
	err := logDemoPage.Execute(&page, logDemoView{
		Timestamp:     timestamp,
		Level:         requested,
		Message:       message,
		Function:      LoggingDemoFunctionName,
		AppName:       d.appName,
		ResourceGroup: d.resourceGroup,
	})
	if err != nil {
		return nil, fmt.Errorf("render logs page: %w", err)
	}

	return &domain.Response{
		StatusCode:  http.StatusOK,
		ContentType: domain.ContentTypeHTML,
		Body:        page.Bytes(),
	}, nil
}

// emitFlavorRecord 输出一条随机组合的示例日志，后缀随日志类型变化。
func (d *LoggingDemo) emitFlavorRecord(log *logrus.Entry, timestamp string) {
	logType := flavorTypes[d.rng.Intn(len(flavorTypes))]
	action := flavorActions[d.rng.Intn(len(flavorActions))]
	status := flavorStatuses[d.rng.Intn(len(flavorStatuses))]
	prefix := fmt.Sprintf("[%s] %s %s", timestamp, action, status)

	switch logType {
	case "DEBUG":
		log.Debugf("%s, execution time: %dms", prefix, 10+d.rng.Intn(491))
	case "INFO":
		log.Infof("%s, items: %d", prefix, 1+d.rng.Intn(100))
	case "WARNING":
		log.Warnf("%s, retry attempt: %d", prefix, 1+d.rng.Intn(3))
	case "ERROR":
		log.Errorf("%s, error code: %d", prefix, 400+d.rng.Intn(101))
	}
}

// logAtLevel 按处理函数的日志级别输出。
// critical 映射为 logrus 的 fatal 级别并带上 severity 字段；Entry.Log 不会退出进程。
func logAtLevel(log *logrus.Entry, level domain.LogLevel, msg string) {
	switch level {
	case domain.LogLevelDebug:
		log.Debug(msg)
	case domain.LogLevelWarning:
		log.Warn(msg)
	case domain.LogLevelError:
		log.Error(msg)
	case domain.LogLevelCritical:
		log.WithField("severity", string(domain.LogLevelCritical)).Log(logrus.FatalLevel, msg)
	default:
		log.Info(msg)
	}
}
