package triggers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/oriys/nimbus-functions/internal/host"
	"github.com/oriys/nimbus-functions/internal/metrics"
)

// NATSQueue 以 JetStream 持久化队列订阅的方式消费任务消息。
// 处理成功时 Ack，失败时 Nak 由服务端按 MaxDeliver 重投。
type NATSQueue struct {
	cfg      config.NATSConfig
	function string
	dispatch Dispatcher
	logger   *logrus.Logger
	metrics  *metrics.Metrics

	conn *nats.Conn
	sub  *nats.Subscription
}

// NewNATSQueue 创建 JetStream 队列触发器。
func NewNATSQueue(cfg config.NATSConfig, function string, d Dispatcher, logger *logrus.Logger, m *metrics.Metrics) *NATSQueue {
	return &NATSQueue{cfg: cfg, function: function, dispatch: d, logger: logger, metrics: m}
}

// Name 返回触发器名称。
func (q *NATSQueue) Name() string { return "nats" }

// Start 连接 NATS，确保流存在并建立持久化队列订阅。
func (q *NATSQueue) Start(ctx context.Context) error {
	nc, err := nats.Connect(q.cfg.URL,
		nats.Name("nimbus-functions"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	stream := &nats.StreamConfig{
		Name:     q.cfg.Stream,
		Subjects: []string{q.cfg.Subject},
		Storage:  nats.FileStorage,
	}
	if _, err := js.AddStream(stream); err != nil && err != nats.ErrStreamNameAlreadyInUse {
		// 流已存在但配置不同时尝试更新
		if _, uerr := js.UpdateStream(stream); uerr != nil {
			q.logger.WithError(uerr).WithField("stream", q.cfg.Stream).Warn("Failed to ensure JetStream stream")
		}
	}

	opts := []nats.SubOpt{nats.Durable(q.cfg.Durable), nats.ManualAck(), nats.DeliverAll()}
	if q.cfg.MaxDeliver > 0 {
		opts = append(opts, nats.MaxDeliver(q.cfg.MaxDeliver))
	}

	sub, err := js.QueueSubscribe(q.cfg.Subject, q.cfg.Durable, func(msg *nats.Msg) {
		q.handle(ctx, msg)
	}, opts...)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	q.conn = nc
	q.sub = sub
	q.logger.WithFields(logrus.Fields{
		"stream":   q.cfg.Stream,
		"subject":  q.cfg.Subject,
		"function": q.function,
	}).Info("NATS queue trigger started")

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

func (q *NATSQueue) handle(ctx context.Context, msg *nats.Msg) {
	ev, err := natsEvent(q.cfg.Stream, msg)
	if err != nil {
		q.logger.WithError(err).WithField("event_id", ev.ID()).Debug("Dropped queue message attributes")
	}
	if err = q.dispatch.Dispatch(ctx, q.function, ev); err != nil {
		q.logger.WithError(err).WithField("event_id", ev.ID()).Warn("Queue message failed, requesting redelivery")
		q.metrics.RecordTriggerMessage("nats", resultFailed)
		_ = msg.Nak()
		return
	}
	q.metrics.RecordTriggerMessage("nats", resultSuccess)
	_ = msg.Ack()
}

// natsEvent 将 JetStream 消息转换为 CloudEvent。
// 优先使用 Nats-Msg-Id 作为事件标识，其次使用流序号。
func natsEvent(stream string, msg *nats.Msg) (event.Event, error) {
	ext := map[string]string{"subject": msg.Subject}
	id := msg.Header.Get(nats.MsgIdHdr)

	if md, err := msg.Metadata(); err == nil {
		ext["streamseq"] = strconv.FormatUint(md.Sequence.Stream, 10)
		ext["numdelivered"] = strconv.FormatUint(md.NumDelivered, 10)
		if id == "" {
			id = fmt.Sprintf("%s-%d", md.Stream, md.Sequence.Stream)
		}
	}
	return host.NewEvent(id, "nats://"+stream, domain.EventTypeQueueMessage, msg.Data, ext)
}

// Close 关闭订阅与连接。
func (q *NATSQueue) Close() error {
	if q.sub != nil {
		_ = q.sub.Unsubscribe()
	}
	if q.conn != nil {
		q.conn.Close()
	}
	return nil
}
