package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/oriys/nimbus-functions/internal/domain"
)

// PostgresStore 将文档写入 PostgreSQL 的 JSONB 列（兼容 Cosmos DB for PostgreSQL）。
// 每个集合对应一张表，表名由集合名转换而来；database 作为列值保存，
// 实际连接的数据库由连接串决定。
type PostgresStore struct {
	db *sql.DB

	mu      sync.Mutex
	ensured map[string]bool
}

// NewPostgresStore 创建连接池。sql.Open 不会立即连接数据库。
// timeout 大于 0 时作为 connect_timeout 写入连接串，连接串中已有的设置优先。
func NewPostgresStore(ctx context.Context, dsn string, timeout time.Duration) (*PostgresStore, error) {
	db, err := sql.Open("postgres", withConnectTimeout(dsn, timeout))
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w: %w", domain.ErrStoreUnavailable, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresStore{db: db, ensured: make(map[string]bool)}, nil
}

// withConnectTimeout 为 URL 或 key=value 形式的连接串补充 connect_timeout（秒，向上取整）。
func withConnectTimeout(dsn string, timeout time.Duration) string {
	if timeout <= 0 || strings.Contains(dsn, "connect_timeout") {
		return dsn
	}
	secs := strconv.Itoa(int((timeout + time.Second - 1) / time.Second))

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return dsn
		}
		q := u.Query()
		q.Set("connect_timeout", secs)
		u.RawQuery = q.Encode()
		return u.String()
	}
	return strings.TrimSpace(dsn) + " connect_timeout=" + secs
}

// tableName 将集合名转换为合法的表名，如 deen-collection -> deen_collection。
func tableName(collection string) string {
	return strings.ReplaceAll(strings.ToLower(collection), "-", "_")
}

func (s *PostgresStore) ensureTable(ctx context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[table] {
		return nil
	}

	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	database_name TEXT NOT NULL,
	body JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, pq.QuoteIdentifier(table))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return err
	}
	s.ensured[table] = true
	return nil
}

// InsertDocument 将文档原样写入 body 列。
func (s *PostgresStore) InsertDocument(ctx context.Context, database, collection string, doc *domain.Document) (string, error) {
	table := tableName(collection)
	if err := s.ensureTable(ctx, table); err != nil {
		return "", fmt.Errorf("ensure table %s: %w: %w", table, domain.ErrInsertFailed, err)
	}

	id := uuid.NewString()
	stmt := fmt.Sprintf(`INSERT INTO %s (id, database_name, body) VALUES ($1, $2, $3::jsonb)`, pq.QuoteIdentifier(table))
	if _, err := s.db.ExecContext(ctx, stmt, id, database, string(doc.Raw)); err != nil {
		return "", fmt.Errorf("insert into %s: %w: %w", table, domain.ErrInsertFailed, err)
	}
	return id, nil
}

// Ping 检查数据库是否可达。
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Close 关闭连接池。
func (s *PostgresStore) Close(context.Context) error {
	return s.db.Close()
}

// Name 返回 "postgres"。
func (s *PostgresStore) Name() string { return "postgres" }
