package triggers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/oriys/nimbus-functions/internal/host"
	"github.com/oriys/nimbus-functions/internal/metrics"
)

// TimerInfo 是定时触发时传给函数的消息体。
type TimerInfo struct {
	Schedule      string    `json:"schedule"`
	ScheduledTime time.Time `json:"scheduled_time"`
}

// Timer 按 cron 表达式（含秒）定时调用函数。
type Timer struct {
	timers   []config.TimerConfig
	dispatch Dispatcher
	logger   *logrus.Logger
	metrics  *metrics.Metrics

	cron *cron.Cron
}

// NewTimer 创建定时触发器。
func NewTimer(timers []config.TimerConfig, d Dispatcher, logger *logrus.Logger, m *metrics.Metrics) *Timer {
	return &Timer{
		timers:   timers,
		dispatch: d,
		logger:   logger,
		metrics:  m,
		cron:     cron.New(cron.WithSeconds()),
	}
}

// Name 返回触发器名称。
func (t *Timer) Name() string { return "timer" }

// Start 注册全部定时任务并启动调度器。任一表达式非法时不启动。
func (t *Timer) Start(ctx context.Context) error {
	for _, tc := range t.timers {
		if _, err := t.cron.AddFunc(tc.Schedule, func() { t.fire(ctx, tc) }); err != nil {
			return fmt.Errorf("schedule %q for %s: %w", tc.Schedule, tc.Function, err)
		}
	}

	t.cron.Start()
	t.logger.WithField("count", len(t.timers)).Info("Timer trigger started")
	return nil
}

func (t *Timer) fire(ctx context.Context, tc config.TimerConfig) {
	if ctx.Err() != nil {
		return
	}
	body, _ := json.Marshal(TimerInfo{Schedule: tc.Schedule, ScheduledTime: time.Now().UTC()})

	ev, err := host.NewEvent("", "cron://"+tc.Function, domain.EventTypeTimerTick, body,
		map[string]string{"schedule": tc.Schedule})
	if err != nil {
		t.logger.WithError(err).WithField("function", tc.Function).Debug("Dropped timer event attributes")
	}
	if err := t.dispatch.Dispatch(ctx, tc.Function, ev); err != nil {
		t.logger.WithError(err).WithField("function", tc.Function).Error("Failed to invoke timer function")
		t.metrics.RecordTriggerMessage("timer", resultFailed)
		return
	}
	t.metrics.RecordTriggerMessage("timer", resultSuccess)
}

// Close 停止调度器并等待正在运行的任务结束。
func (t *Timer) Close() error {
	<-t.cron.Stop().Done()
	return nil
}
