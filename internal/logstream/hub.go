// Package logstream 将宿主日志实时推送给 websocket 订阅者。
// Hook 把每条 logrus 日志转换为 domain.LogEntry 并交给 Hub 广播，
// Handler 负责 websocket 升级与按函数过滤。
package logstream

import (
	"sync"

	"github.com/oriys/nimbus-functions/internal/domain"
)

// Hub 日志广播器。订阅者通道满时丢弃该订阅者的日志，不阻塞日志写入方。
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan domain.LogEntry]struct{}
	buffer      int
}

// NewHub 创建日志广播器，buffer 为每个订阅者的通道容量。
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 100
	}
	return &Hub{
		subscribers: make(map[chan domain.LogEntry]struct{}),
		buffer:      buffer,
	}
}

// Subscribe 订阅日志，返回接收通道与取消函数。
func (h *Hub) Subscribe() (<-chan domain.LogEntry, func()) {
	ch := make(chan domain.LogEntry, h.buffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			h.mu.Unlock()
		})
	}
}

// Publish 广播日志
func (h *Hub) Publish(entry domain.LogEntry) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
}

// Subscribers 返回当前订阅者数量。
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
