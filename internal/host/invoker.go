package host

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/oriys/nimbus-functions/internal/metrics"
	"github.com/oriys/nimbus-functions/internal/telemetry"
)

// Invoker 执行已注册的函数。
// 每次调用都会获得 UUID 调用标识、独立的追踪 Span 与带 function/invocation_id/trigger 字段的日志条目。
type Invoker struct {
	registry *Registry
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewInvoker 创建调用器。m 可以为 nil。
func NewInvoker(registry *Registry, logger *logrus.Logger, m *metrics.Metrics) *Invoker {
	return &Invoker{
		registry: registry,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Registry 返回调用器使用的注册表。
func (i *Invoker) Registry() *Registry {
	return i.registry
}

// InvokeHTTP 以 HTTP 方式调用函数。
// 函数不存在或不接受 HTTP 触发时返回 ErrFunctionNotFound / ErrTriggerMismatch。
func (i *Invoker) InvokeHTTP(r *http.Request, name string) (*domain.Response, *domain.Invocation, error) {
	fn, err := i.registry.Get(name)
	if err != nil {
		return nil, nil, err
	}
	if fn.HTTP == nil {
		return nil, nil, fmt.Errorf("%s over http: %w", name, domain.ErrTriggerMismatch)
	}

	var resp *domain.Response
	inv, err := i.run(r.Context(), name, domain.TriggerHTTP, func(ctx context.Context, log *logrus.Entry) error {
		var herr error
		resp, herr = fn.HTTP(ctx, r.WithContext(ctx), log)
		return herr
	})
	return resp, inv, err
}

// InvokeMessage 以消息方式调用函数。
func (i *Invoker) InvokeMessage(ctx context.Context, name string, trigger domain.TriggerType, msg *domain.Message) (*domain.Invocation, error) {
	fn, err := i.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if fn.Message == nil {
		return nil, fmt.Errorf("%s over %s: %w", name, trigger, domain.ErrTriggerMismatch)
	}

	return i.run(ctx, name, trigger, func(ctx context.Context, log *logrus.Entry) error {
		return fn.Message(ctx, msg, log)
	})
}

// InvokeEvent 将 CloudEvent 还原为消息并调用函数，触发方式由事件类型决定。
func (i *Invoker) InvokeEvent(ctx context.Context, function string, ev event.Event) (*domain.Invocation, error) {
	return i.InvokeMessage(ctx, function, domain.TriggerForEventType(ev.Type()), MessageFromEvent(ev))
}

// Dispatch 满足触发器的分发接口。
func (i *Invoker) Dispatch(ctx context.Context, function string, ev event.Event) error {
	_, err := i.InvokeEvent(ctx, function, ev)
	return err
}

// run 包装一次调用：创建 Span 与日志条目、恢复 panic、记录指标。
func (i *Invoker) run(ctx context.Context, name string, trigger domain.TriggerType, call func(context.Context, *logrus.Entry) error) (inv *domain.Invocation, err error) {
	id := uuid.NewString()
	ctx, span := telemetry.StartInvocationSpan(ctx, name, string(trigger), id)

	log := i.logger.WithContext(ctx).WithFields(logrus.Fields{
		"function":      name,
		"invocation_id": id,
		"trigger":       string(trigger),
	})

	start := i.now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("function %s panicked: %v", name, p)
		}

		duration := i.now().Sub(start)
		inv = &domain.Invocation{
			ID:           id,
			FunctionName: name,
			TriggerType:  trigger,
			Status:       domain.InvocationStatusSuccess,
			StartedAt:    start,
			DurationMs:   duration.Milliseconds(),
		}
		if err != nil {
			inv.Status = domain.InvocationStatusFailed
			inv.Error = err.Error()
			errorType := domain.ErrorClass(err)
			i.metrics.RecordError(name, errorType)
			log.WithError(err).WithField("error_type", errorType).Error("Invocation failed")
		} else {
			log.WithField("duration_ms", inv.DurationMs).Debug("Invocation completed")
		}
		i.metrics.RecordInvocation(name, string(trigger), string(inv.Status), float64(duration.Microseconds())/1000)
		telemetry.EndSpan(span, err)
	}()

	err = call(ctx, log)
	return inv, err
}
