package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/oriys/nimbus-functions/internal/domain"
)

// StoredDocument 是进程内存储中的一条记录。
type StoredDocument struct {
	ID       string
	Database string
	Document *domain.Document
}

// MemoryStore 是进程内的文档存储，用于本地开发（连接串 memory://）与测试。
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]StoredDocument
	fail error
}

// NewMemoryStore 创建空的进程内存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]StoredDocument)}
}

func memoryKey(database, collection string) string {
	return database + "/" + collection
}

// InsertDocument 保存文档并返回新的标识。
func (s *MemoryStore) InsertDocument(_ context.Context, database, collection string, doc *domain.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", fmt.Errorf("insert into %s.%s: %w: %w", database, collection, domain.ErrInsertFailed, s.fail)
	}
	id := uuid.NewString()
	key := memoryKey(database, collection)
	s.docs[key] = append(s.docs[key], StoredDocument{ID: id, Database: database, Document: doc})
	return id, nil
}

// Documents 返回指定集合中的全部记录。
func (s *MemoryStore) Documents(database, collection string) []StoredDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StoredDocument, len(s.docs[memoryKey(database, collection)]))
	copy(out, s.docs[memoryKey(database, collection)])
	return out
}

// FailInserts 让后续写入返回给定错误，传入 nil 恢复正常。
func (s *MemoryStore) FailInserts(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Ping 总是成功。
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close 无需释放资源。
func (s *MemoryStore) Close(context.Context) error { return nil }

// Name 返回 "memory"。
func (s *MemoryStore) Name() string { return "memory" }
