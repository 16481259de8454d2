package host

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/google/uuid"

	"github.com/oriys/nimbus-functions/internal/domain"
)

// NewEvent 将触发器收到的原始消息封装为 CloudEvent。
// id 为空时生成 UUID；扩展属性名会被规范化为小写字母数字。
// 无法写入的扩展属性会被跳过并汇总到返回的错误中，事件本身仍然可用。
func NewEvent(id, source, eventType string, body []byte, extensions map[string]string) (event.Event, error) {
	if id == "" {
		id = uuid.NewString()
	}
	ev := event.New()
	ev.SetID(id)
	ev.SetSource(source)
	ev.SetType(eventType)
	ev.SetTime(time.Now().UTC())

	var errs []error
	if err := ev.SetData("application/octet-stream", body); err != nil {
		errs = append(errs, fmt.Errorf("set data: %w", err))
	}
	for k, v := range extensions {
		name := extensionName(k)
		if name == "" {
			errs = append(errs, fmt.Errorf("extension %q: no valid attribute characters", k))
			continue
		}
		if err := ev.Context.SetExtension(name, v); err != nil {
			errs = append(errs, fmt.Errorf("extension %q: %w", k, err))
		}
	}
	return ev, errors.Join(errs...)
}

// extensionName 过滤掉 CloudEvents 扩展名不允许的字符。
func extensionName(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MessageFromEvent 将 CloudEvent 还原为处理函数看到的消息。
func MessageFromEvent(ev event.Event) *domain.Message {
	metadata := make(map[string]string, len(ev.Extensions())+1)
	for k, v := range ev.Extensions() {
		metadata[k] = fmt.Sprint(v)
	}
	if subject := ev.Subject(); subject != "" {
		metadata["subject"] = subject
	}
	return &domain.Message{
		Body:     ev.Data(),
		ID:       ev.ID(),
		Source:   ev.Source(),
		Metadata: metadata,
	}
}
