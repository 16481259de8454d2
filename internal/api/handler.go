package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/oriys/nimbus-functions/internal/host"
	"github.com/oriys/nimbus-functions/internal/telemetry"
)

// Pinger 是就绪检查依赖的组件。
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler 处理函数调用与运维请求。
type Handler struct {
	invoker *host.Invoker
	checks  map[string]Pinger
	logger  *logrus.Logger
}

// NewHandler 创建处理器。checks 中的组件会在就绪检查时逐一 Ping。
func NewHandler(invoker *host.Invoker, checks map[string]Pinger, logger *logrus.Logger) *Handler {
	return &Handler{invoker: invoker, checks: checks, logger: logger}
}

// InvokeHTTP 以 HTTP 方式调用函数。
// HTTP端点: ANY /api/{function}
//
// 返回值：
//   - 处理函数给出的状态码与响应体（200 / 400）
//   - 404: 函数不存在或不接受 HTTP 触发
//   - 500: 处理函数返回错误（配置缺失、下游故障）
func (h *Handler) InvokeHTTP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "function")

	resp, inv, err := h.invoker.InvokeHTTP(r, name)
	if inv != nil {
		w.Header().Set("X-Invocation-Id", inv.ID)
	}
	if err != nil {
		writeErrorWithContext(w, r, statusForError(err), err.Error())
		return
	}
	resp.Write(w)
}

// statusForError 将调用错误映射为 HTTP 状态码。
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrFunctionNotFound), errors.Is(err, domain.ErrTriggerMismatch):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type functionInfo struct {
	Name     string   `json:"name"`
	Triggers []string `json:"triggers"`
}

// ListFunctions 返回已注册的函数。
// HTTP端点: GET /admin/functions
func (h *Handler) ListFunctions(w http.ResponseWriter, r *http.Request) {
	fns := h.invoker.Registry().Functions()
	out := make([]functionInfo, 0, len(fns))
	for _, fn := range fns {
		out = append(out, functionInfo{Name: fn.Name, Triggers: fn.Triggers()})
	}
	writeJSON(w, http.StatusOK, out)
}

// Health 处理基本健康检查请求。
// HTTP端点: GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready 处理就绪探针请求。任一依赖 Ping 失败时返回 503。
// HTTP端点: GET /health/ready
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			if h.logger != nil {
				h.logger.WithError(err).WithField("check", name).Warn("Readiness check failed")
			}
			writeErrorWithContext(w, r, http.StatusServiceUnavailable, name+" not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Live 处理存活探针请求。
// HTTP端点: GET /health/live
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应。
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// ErrorResponse 是宿主层面错误的统一响应结构。
// 处理函数自己的 400 响应保持纯文本，不使用该结构。
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// writeErrorWithContext 写入错误响应，并从请求上下文提取 request_id 与 trace_id。
func writeErrorWithContext(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     message,
		RequestID: middleware.GetReqID(r.Context()),
		TraceID:   telemetry.TraceIDFromContext(r.Context()),
	})
}
