package triggers

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/IBM/sarama"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/sirupsen/logrus"

	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/oriys/nimbus-functions/internal/host"
	"github.com/oriys/nimbus-functions/internal/metrics"
)

// KafkaStream 以消费者组方式读取 Kafka 主题（兼容 Event Hubs 的 Kafka 端点）。
// 每条记录处理后都会提交位点，失败的记录只记录日志。
type KafkaStream struct {
	cfg      config.EventStreamConfig
	dispatch Dispatcher
	logger   *logrus.Logger
	metrics  *metrics.Metrics

	group  sarama.ConsumerGroup
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewKafkaStream 创建事件流触发器。
func NewKafkaStream(cfg config.EventStreamConfig, d Dispatcher, logger *logrus.Logger, m *metrics.Metrics) *KafkaStream {
	return &KafkaStream{cfg: cfg, dispatch: d, logger: logger, metrics: m}
}

// Name 返回触发器名称。
func (k *KafkaStream) Name() string { return "kafka" }

// SaramaConfig 根据事件流配置构建 sarama 客户端配置。
func SaramaConfig(cfg config.EventStreamConfig) (*sarama.Config, error) {
	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("kafka version %q: %w", cfg.Version, err)
	}

	sc := sarama.NewConfig()
	sc.ClientID = "nimbus-functions"
	sc.Version = version
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Return.Errors = true
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	if cfg.SASL.Enabled {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		sc.Net.SASL.User = cfg.SASL.User
		sc.Net.SASL.Password = cfg.SASL.Password
	}
	if cfg.TLS {
		sc.Net.TLS.Enable = true
		sc.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return sc, nil
}

// Start 加入消费者组并在后台消费。
func (k *KafkaStream) Start(ctx context.Context) error {
	sc, err := SaramaConfig(k.cfg)
	if err != nil {
		return err
	}

	group, err := sarama.NewConsumerGroup(k.cfg.Brokers, k.cfg.Group, sc)
	if err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	k.group = group

	ctx, k.cancel = context.WithCancel(ctx)
	handler := &consumerGroupHandler{stream: k}

	k.wg.Add(2)
	go func() {
		defer k.wg.Done()
		for {
			if err := group.Consume(ctx, []string{k.cfg.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				k.logger.WithError(err).Warn("Kafka consume session ended with error")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	go func() {
		defer k.wg.Done()
		for err := range group.Errors() {
			k.logger.WithError(err).Warn("Kafka consumer group error")
		}
	}()

	k.logger.WithFields(logrus.Fields{
		"topic":    k.cfg.Topic,
		"group":    k.cfg.Group,
		"function": k.cfg.Function,
	}).Info("Kafka event stream trigger started")
	return nil
}

// Close 离开消费者组。
func (k *KafkaStream) Close() error {
	if k.cancel != nil {
		k.cancel()
	}
	var err error
	if k.group != nil {
		err = k.group.Close()
	}
	k.wg.Wait()
	return err
}

// consumerGroupHandler 实现 sarama.ConsumerGroupHandler。
type consumerGroupHandler struct {
	stream *KafkaStream
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim 逐条分发分区中的记录并标记位点。
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	k := h.stream
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			ev, err := kafkaEvent(msg)
			if err != nil {
				k.logger.WithError(err).WithField("event_id", ev.ID()).Debug("Dropped event stream record attributes")
			}
			if err = k.dispatch.Dispatch(session.Context(), k.cfg.Function, ev); err != nil {
				k.logger.WithError(err).WithFields(logrus.Fields{
					"event_id":  ev.ID(),
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("Event stream record failed")
				k.metrics.RecordTriggerMessage("kafka", resultFailed)
			} else {
				k.metrics.RecordTriggerMessage("kafka", resultSuccess)
			}
			session.MarkMessage(msg, "")
		}
	}
}

// kafkaEvent 将 Kafka 记录转换为 CloudEvent，标识为 "{topic}-{partition}-{offset}"。
// 返回的错误只说明部分扩展属性被丢弃，事件始终可用。
func kafkaEvent(msg *sarama.ConsumerMessage) (event.Event, error) {
	ext := map[string]string{
		"topic":     msg.Topic,
		"partition": strconv.FormatInt(int64(msg.Partition), 10),
		"offset":    strconv.FormatInt(msg.Offset, 10),
	}
	if len(msg.Key) > 0 {
		ext["partitionkey"] = string(msg.Key)
	}
	id := fmt.Sprintf("%s-%d-%d", msg.Topic, msg.Partition, msg.Offset)
	ev, err := host.NewEvent(id, "kafka://"+msg.Topic, domain.EventTypeStreamRecord, msg.Value, ext)
	if !msg.Timestamp.IsZero() {
		ev.SetTime(msg.Timestamp)
	}
	return ev, err
}
