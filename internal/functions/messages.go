package functions

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oriys/nimbus-functions/internal/domain"
)

// QueueMessage 处理一条队列消息：解码为文本并记录。
// 解码失败的错误返回给投递方，由其决定重投或转入毒信队列。
func QueueMessage(_ context.Context, msg *domain.Message, log *logrus.Entry) error {
	text, err := msg.Text()
	if err != nil {
		return fmt.Errorf("queue message: %w", err)
	}
	log.Infof("Processing task: %s", text)
	return nil
}

// EventStreamRecord 处理一条事件流记录，行为与 QueueMessage 相同，只是日志措辞不同。
func EventStreamRecord(_ context.Context, msg *domain.Message, log *logrus.Entry) error {
	text, err := msg.Text()
	if err != nil {
		return fmt.Errorf("event stream record: %w", err)
	}
	log.Infof("Received Kafka message: %s", text)
	return nil
}
