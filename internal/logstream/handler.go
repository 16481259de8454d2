package logstream

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Handler 将 Hub 的日志通过 websocket 推送给客户端。
// 查询参数 function 用于只接收指定函数的日志。
type Handler struct {
	hub      *Hub
	logger   *logrus.Logger
	upgrader websocket.Upgrader
}

// NewHandler 创建 websocket 处理器。
func NewHandler(hub *Hub, logger *logrus.Logger) *Handler {
	return &Handler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP 处理 GET /api/logs/stream。
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("function")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.WithError(err).Warn("WebSocket upgrade failed")
		}
		return
	}
	defer conn.Close()

	entries, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	// 读循环只用于感知客户端关闭
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case entry := <-entries:
			if filter != "" && entry.FunctionName != filter {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		}
	}
}
