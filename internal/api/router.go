// Package api 提供了函数宿主的 HTTP 入口。
// 该文件负责配置路由器和中间件，将 HTTP 请求映射到函数调用与运维端点。
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/oriys/nimbus-functions/internal/telemetry"
)

// RouterConfig 路由器配置选项
type RouterConfig struct {
	// Handler 函数调用与健康检查处理器
	Handler *Handler
	// Metrics 指标端点处理器（可选）
	Metrics http.Handler
	// LogStream 实时日志 websocket 处理器（可选）
	LogStream http.Handler
	// Logger 日志记录器
	Logger *logrus.Logger
	// ServiceName 追踪中使用的服务名称
	ServiceName string
	// InvokeTimeout 单次 HTTP 调用的超时时间，0 表示 60 秒
	InvokeTimeout time.Duration
}

// NewRouter 创建并配置 HTTP 路由器。
//
// 路由结构：
//
//	/health              - 基本健康检查
//	/health/ready        - 就绪探针（检查已打开的文档存储）
//	/health/live         - 存活探针
//	/metrics             - Prometheus 指标端点
//	/admin/functions     - 已注册函数列表
//	/api/logs/stream     - 实时日志 websocket
//	/api/{function}      - HTTP 触发（任意方法）
//	POST /{function}     - Azure Functions 自定义处理程序的非 HTTP 触发
func NewRouter(cfg *RouterConfig) *chi.Mux {
	h := cfg.Handler
	timeout := cfg.InvokeTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(telemetry.HTTPMiddleware(cfg.ServiceName))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)
	r.Get("/health/live", h.Live)

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	r.Get("/admin/functions", h.ListFunctions)

	// websocket 连接是长连接，不受调用超时限制
	if cfg.LogStream != nil {
		r.Handle("/api/logs/stream", cfg.LogStream)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.HandleFunc("/api/{function}", h.InvokeHTTP)
		r.Post("/{function}", h.InvokeCustomHandler)
	})

	return r
}

// requestLogger 使用 logrus 记录每个请求的方法、路径、状态码与耗时。
func requestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if logger == nil {
				next.ServeHTTP(w, r)
				return
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.WithContext(r.Context()).WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			}).Debug("HTTP request")
		})
	}
}

// corsMiddleware 允许任意来源的跨域调用，并直接应答预检请求。
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
