package domain

import (
	"time"
)

// TriggerType 表示触发函数调用的方式类型。
type TriggerType string

// 触发类型常量定义
const (
	// TriggerHTTP 表示通过 HTTP 请求触发
	TriggerHTTP TriggerType = "http"
	// TriggerQueue 表示通过队列消息触发
	TriggerQueue TriggerType = "queue"
	// TriggerEventStream 表示通过事件流（Kafka / Event Hubs）记录触发
	TriggerEventStream TriggerType = "eventstream"
	// TriggerTimer 表示通过定时器触发
	TriggerTimer TriggerType = "timer"
	// TriggerCustomHandler 表示由 Azure Functions 宿主通过自定义处理程序协议转发
	TriggerCustomHandler TriggerType = "customhandler"
)

// 事件类型常量，触发器转换出的 CloudEvent 使用这些类型。
const (
	EventTypeQueueMessage  = "com.nimbus.queue.message"
	EventTypeStreamRecord  = "com.nimbus.eventstream.record"
	EventTypeTimerTick     = "com.nimbus.timer.tick"
	EventTypeCustomHandler = "com.nimbus.customhandler.invoke"
)

// TriggerForEventType 将 CloudEvent 类型映射为触发类型。
func TriggerForEventType(eventType string) TriggerType {
	switch eventType {
	case EventTypeQueueMessage:
		return TriggerQueue
	case EventTypeStreamRecord:
		return TriggerEventStream
	case EventTypeTimerTick:
		return TriggerTimer
	case EventTypeCustomHandler:
		return TriggerCustomHandler
	default:
		return TriggerQueue
	}
}

// InvocationStatus 表示一次调用的结果状态。
type InvocationStatus string

const (
	// InvocationStatusSuccess 表示调用执行成功
	InvocationStatusSuccess InvocationStatus = "success"
	// InvocationStatusFailed 表示调用执行失败
	InvocationStatusFailed InvocationStatus = "failed"
)

// Invocation 记录一次调用的元数据，由宿主在调用结束时生成。
type Invocation struct {
	// ID 是调用的唯一标识符（UUID）
	ID string `json:"id"`
	// FunctionName 是被调用函数的名称
	FunctionName string `json:"function_name"`
	// TriggerType 是触发调用的方式
	TriggerType TriggerType `json:"trigger_type"`
	// Status 是调用结果
	Status InvocationStatus `json:"status"`
	// Error 是调用失败时的错误信息
	Error string `json:"error,omitempty"`
	// StartedAt 是调用开始时间
	StartedAt time.Time `json:"started_at"`
	// DurationMs 是调用耗时（毫秒）
	DurationMs int64 `json:"duration_ms"`
}
