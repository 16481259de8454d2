// Package main 是函数宿主的入口点。
// 宿主既可以作为 Azure Functions 自定义处理程序运行（监听 FUNCTIONS_CUSTOMHANDLER_PORT），
// 也可以独立运行，由内置的 NATS/Redis 队列、Kafka 事件流与 cron 定时触发器驱动函数。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/oriys/nimbus-functions/internal/api"
	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/functions"
	"github.com/oriys/nimbus-functions/internal/host"
	"github.com/oriys/nimbus-functions/internal/logstream"
	"github.com/oriys/nimbus-functions/internal/metrics"
	"github.com/oriys/nimbus-functions/internal/storage"
	"github.com/oriys/nimbus-functions/internal/telemetry"
	"github.com/oriys/nimbus-functions/internal/triggers"
)

// Version 在构建时通过 -ldflags "-X main.Version=..." 注入
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	watch := flag.Bool("watch", true, "Reload logging level when the config file changes")
	flag.Parse()

	// 配置加载前使用默认日志记录器
	bootLogger := logrus.New()
	bootLogger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger.WithError(err).Fatal("Failed to load config")
	}

	logger := telemetry.NewLogger(cfg.Logging, os.Stdout)
	hub := logstream.NewHub(100)
	logger.AddHook(logstream.NewHook(hub))

	logger.WithFields(logrus.Fields{
		"version": Version,
		"port":    cfg.Server.HTTPPort,
	}).Info("Starting function host")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ctx, cfg.Telemetry, Version)
	if err != nil {
		// 追踪初始化失败不影响函数执行
		logger.WithError(err).Warn("Failed to initialize telemetry, continuing without tracing")
		tel, _ = telemetry.New(ctx, config.TelemetryConfig{}, Version)
	} else if tel.IsEnabled() {
		logger.WithFields(logrus.Fields{
			"endpoint":    cfg.Telemetry.Endpoint,
			"sample_rate": cfg.Telemetry.SampleRate,
		}).Info("Telemetry initialized")
	}

	var m *metrics.Metrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(cfg.Metrics.Namespace, prometheus.NewRegistry())
		metricsHandler = m.Handler()
	}

	// 文档存储在第一次写入时才建立连接
	stores := storage.NewProvider(cfg.DocumentStore, nil)
	if !stores.Configured() {
		logger.Warn("No document store connection string configured, write-function will fail")
	}

	registry := host.NewRegistry()
	if err := functions.Register(registry, functions.Deps{
		Functions: cfg.Functions,
		Stores:    stores,
		Recorder:  m,
	}); err != nil {
		logger.WithError(err).Fatal("Failed to register functions")
	}
	invoker := host.NewInvoker(registry, logger, m)

	handler := api.NewHandler(invoker, map[string]api.Pinger{"document_store": stores}, logger)
	router := api.NewRouter(&api.RouterConfig{
		Handler:     handler,
		Metrics:     metricsHandler,
		LogStream:   logstream.NewHandler(hub, logger),
		Logger:      logger,
		ServiceName: cfg.Telemetry.ServiceName,
	})

	// 指标端口与主端口不同时单独暴露 /metrics
	var metricsServer *http.Server
	if metricsHandler != nil && cfg.Server.MetricsPort != 0 && cfg.Server.MetricsPort != cfg.Server.HTTPPort {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.MetricsPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.WithField("port", cfg.Server.MetricsPort).Info("Starting metrics server")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Fatal("Metrics server failed")
			}
		}()
	}

	if *watch {
		watcher := config.NewWatcher(*configPath, cfg)
		watcher.OnChange(func(next *config.Config) {
			telemetry.SetLevel(logger, next.Logging.Level)
			logger.WithField("level", next.Logging.Level).Info("Config reloaded")
		})
		watcher.OnError(func(err error) {
			logger.WithError(err).Warn("Config reload failed")
		})
		if err := watcher.Watch(ctx); err != nil {
			logger.WithError(err).Debug("Config watcher disabled")
		}
	}

	trigs, err := triggers.FromConfig(cfg.Triggers, invoker, logger, m)
	if err != nil {
		logger.WithError(err).Fatal("Invalid trigger configuration")
	}
	if err := triggers.StartAll(ctx, trigs); err != nil {
		logger.WithError(err).Fatal("Failed to start triggers")
	}

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: 120 * time.Second,
	}
	go func() {
		logger.WithField("port", cfg.Server.HTTPPort).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down function host...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Metrics server shutdown error")
		}
	}
	if err := triggers.CloseAll(trigs); err != nil {
		logger.WithError(err).Error("Trigger shutdown error")
	}
	if err := stores.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("Document store close error")
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Telemetry shutdown error")
	}

	logger.Info("Function host stopped")
}
