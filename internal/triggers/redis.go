package triggers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/oriys/nimbus-functions/internal/host"
	"github.com/oriys/nimbus-functions/internal/metrics"
)

// listClient 是 Redis 列表队列用到的命令子集。
type listClient interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// RedisQueue 以 BLPOP 轮询 Redis 列表消费任务消息。
// 处理失败的消息被推入 "{queue}:poison" 列表，不会重投。
type RedisQueue struct {
	cfg      config.RedisConfig
	function string
	dispatch Dispatcher
	logger   *logrus.Logger
	metrics  *metrics.Metrics

	client listClient
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRedisQueue 创建 Redis 列表队列触发器。
func NewRedisQueue(cfg config.RedisConfig, function string, d Dispatcher, logger *logrus.Logger, m *metrics.Metrics) *RedisQueue {
	return &RedisQueue{cfg: cfg, function: function, dispatch: d, logger: logger, metrics: m}
}

// Name 返回触发器名称。
func (q *RedisQueue) Name() string { return "redis" }

// PoisonQueue 返回失败消息所在的列表键。
func (q *RedisQueue) PoisonQueue() string { return q.cfg.Queue + ":poison" }

// Start 连接 Redis 并在后台开始轮询。
func (q *RedisQueue) Start(ctx context.Context) error {
	if q.client == nil {
		client := redis.NewClient(&redis.Options{
			Addr:     q.cfg.Address,
			Password: q.cfg.Password,
			DB:       q.cfg.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		q.client = client
	}

	ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.run(ctx)
	}()

	q.logger.WithFields(logrus.Fields{
		"queue":    q.cfg.Queue,
		"function": q.function,
	}).Info("Redis queue trigger started")
	return nil
}

func (q *RedisQueue) run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := q.poll(ctx); err != nil && ctx.Err() == nil {
			q.logger.WithError(err).Warn("Redis queue poll failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// poll 等待并处理一条消息。超时没有消息时返回 nil。
func (q *RedisQueue) poll(ctx context.Context) error {
	vals, err := q.client.BLPop(ctx, q.cfg.PollTimeout, q.cfg.Queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(vals) != 2 {
		return fmt.Errorf("unexpected BLPOP reply of %d elements", len(vals))
	}

	payload := vals[1]
	ev, err := host.NewEvent("", fmt.Sprintf("redis://%s/%s", q.cfg.Address, q.cfg.Queue),
		domain.EventTypeQueueMessage, []byte(payload), map[string]string{"queue": q.cfg.Queue})
	if err != nil {
		q.logger.WithError(err).WithField("event_id", ev.ID()).Debug("Dropped queue message attributes")
	}

	if err := q.dispatch.Dispatch(ctx, q.function, ev); err != nil {
		q.logger.WithError(err).WithFields(logrus.Fields{
			"event_id": ev.ID(),
			"poison":   q.PoisonQueue(),
		}).Warn("Queue message failed, moving to poison queue")
		q.metrics.RecordTriggerMessage("redis", resultPoisoned)
		return q.client.RPush(ctx, q.PoisonQueue(), payload).Err()
	}
	q.metrics.RecordTriggerMessage("redis", resultSuccess)
	return nil
}

// Close 停止轮询并关闭连接。
func (q *RedisQueue) Close() error {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}
