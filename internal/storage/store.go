// Package storage 提供文档存储的抽象与实现。
// write-function 通过 Provider 获取共享的 DocumentStore，底层可以是
// MongoDB（Cosmos DB Mongo API）、PostgreSQL（JSONB）或进程内存储。
package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/domain"
)

// DocumentStore 是无模式文档存储的最小接口。
// 实现必须支持并发调用，底层连接池在进程内共享。
type DocumentStore interface {
	// InsertDocument 将文档原样写入 database/collection，返回存储分配的标识
	InsertDocument(ctx context.Context, database, collection string, doc *domain.Document) (string, error)
	// Ping 检查存储是否可达
	Ping(ctx context.Context) error
	// Close 释放连接池
	Close(ctx context.Context) error
	// Name 返回存储类型名称，用于指标标签
	Name() string
}

// Open 根据配置打开文档存储。
// 连接串为空时返回 ErrMissingConnectionString，不会发起任何网络调用。
func Open(ctx context.Context, cfg config.DocumentStoreConfig) (DocumentStore, error) {
	if strings.TrimSpace(cfg.ConnectionString) == "" {
		return nil, domain.ErrMissingConnectionString
	}

	switch driver := resolveDriver(cfg); driver {
	case config.StoreDriverMongo:
		return NewMongoStore(ctx, cfg.ConnectionString, cfg.ConnectTimeout)
	case config.StoreDriverPostgres:
		return NewPostgresStore(ctx, cfg.ConnectionString, cfg.ConnectTimeout)
	case config.StoreDriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("connection string scheme: %w", domain.ErrUnsupportedStore)
	}
}

// resolveDriver 返回显式配置的驱动，否则按连接串推断。
func resolveDriver(cfg config.DocumentStoreConfig) string {
	if cfg.Driver != config.StoreDriverAuto {
		return cfg.Driver
	}
	conn := strings.ToLower(strings.TrimSpace(cfg.ConnectionString))
	switch {
	case strings.HasPrefix(conn, "mongodb://"), strings.HasPrefix(conn, "mongodb+srv://"):
		return config.StoreDriverMongo
	case strings.HasPrefix(conn, "postgres://"), strings.HasPrefix(conn, "postgresql://"),
		strings.Contains(conn, "host=") && strings.Contains(conn, "dbname="):
		return config.StoreDriverPostgres
	case strings.HasPrefix(conn, "memory://"):
		return config.StoreDriverMemory
	default:
		return ""
	}
}

// OpenFunc 打开一个文档存储。
type OpenFunc func(ctx context.Context, cfg config.DocumentStoreConfig) (DocumentStore, error)

// Provider 在首次使用时打开文档存储，并在后续调用间复用同一个连接池。
// 打开失败不会被缓存，下一次调用会重试。
type Provider struct {
	cfg  config.DocumentStoreConfig
	open OpenFunc

	mu    sync.Mutex
	store DocumentStore
}

// NewProvider 创建存储提供者，open 为 nil 时使用 Open。
func NewProvider(cfg config.DocumentStoreConfig, open OpenFunc) *Provider {
	if open == nil {
		open = Open
	}
	return &Provider{cfg: cfg, open: open}
}

// Store 返回共享的文档存储。
func (p *Provider) Store(ctx context.Context) (DocumentStore, error) {
	if strings.TrimSpace(p.cfg.ConnectionString) == "" {
		return nil, domain.ErrMissingConnectionString
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store != nil {
		return p.store, nil
	}

	store, err := p.open(ctx, p.cfg)
	if err != nil {
		return nil, err
	}
	p.store = store
	return store, nil
}

// Configured 返回是否配置了连接串。
func (p *Provider) Configured() bool {
	return strings.TrimSpace(p.cfg.ConnectionString) != ""
}

// Ping 检查已打开的存储是否可达；尚未打开时视为健康。
func (p *Provider) Ping(ctx context.Context) error {
	p.mu.Lock()
	store := p.store
	p.mu.Unlock()
	if store == nil {
		return nil
	}
	return store.Ping(ctx)
}

// Close 关闭已打开的存储。
func (p *Provider) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store == nil {
		return nil
	}
	err := p.store.Close(ctx)
	p.store = nil
	return err
}
