// Package triggers 实现自托管的触发器：NATS JetStream 与 Redis 列表队列、
// Kafka（Event Hubs Kafka 端点）事件流以及 cron 定时器。
// 每个触发器把收到的原始消息封装为 CloudEvent，交给 Dispatcher 调用对应的函数。
package triggers

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/sirupsen/logrus"

	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/metrics"
)

// 触发器消息的处理结果，用作指标标签
const (
	resultSuccess  = "success"
	resultFailed   = "failed"
	resultPoisoned = "poisoned"
)

// Dispatcher 调用函数处理一条事件。host.Invoker 实现了该接口。
type Dispatcher interface {
	Dispatch(ctx context.Context, function string, ev event.Event) error
}

// Trigger 是一个可启动、可关闭的消息来源。
// Start 不阻塞，消费在后台进行直到 ctx 取消或 Close 被调用。
type Trigger interface {
	Name() string
	Start(ctx context.Context) error
	Close() error
}

// FromConfig 根据配置构建需要启用的触发器。
// 只构建对象，不建立任何网络连接。
func FromConfig(cfg config.TriggersConfig, d Dispatcher, logger *logrus.Logger, m *metrics.Metrics) ([]Trigger, error) {
	var out []Trigger

	switch cfg.Queue.Driver {
	case config.QueueDriverNone:
	case config.QueueDriverNATS:
		out = append(out, NewNATSQueue(cfg.Queue.NATS, cfg.Queue.Function, d, logger, m))
	case config.QueueDriverRedis:
		out = append(out, NewRedisQueue(cfg.Queue.Redis, cfg.Queue.Function, d, logger, m))
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}

	if cfg.EventStream.Enabled {
		out = append(out, NewKafkaStream(cfg.EventStream, d, logger, m))
	}

	if len(cfg.Timers) > 0 {
		out = append(out, NewTimer(cfg.Timers, d, logger, m))
	}
	return out, nil
}

// StartAll 依次启动触发器；任一失败时关闭已启动的触发器并返回错误。
func StartAll(ctx context.Context, triggers []Trigger) error {
	for i, t := range triggers {
		if err := t.Start(ctx); err != nil {
			_ = CloseAll(triggers[:i])
			return fmt.Errorf("start %s trigger: %w", t.Name(), err)
		}
	}
	return nil
}

// CloseAll 关闭全部触发器，返回合并后的错误。
func CloseAll(triggers []Trigger) error {
	var errs []error
	for _, t := range triggers {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s trigger: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}
