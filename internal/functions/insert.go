package functions

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/oriys/nimbus-functions/internal/storage"
)

// 文档写入的目标位置
const (
	InsertDatabase   = "deen-mongo-db"
	InsertCollection = "deen-collection"
)

// StoreProvider 提供共享的文档存储。
// 连接串缺失时必须在任何网络调用之前返回 ErrMissingConnectionString。
type StoreProvider interface {
	Store(ctx context.Context) (storage.DocumentStore, error)
}

// DocumentRecorder 记录成功写入的文档数。
type DocumentRecorder interface {
	RecordDocumentInserted(store string)
}

// DocumentInsert 将请求体中的 JSON 对象原样写入文档存储。
type DocumentInsert struct {
	stores   StoreProvider
	recorder DocumentRecorder
}

// NewDocumentInsert 创建文档写入处理函数，recorder 可以为 nil。
func NewDocumentInsert(stores StoreProvider, recorder DocumentRecorder) *DocumentInsert {
	return &DocumentInsert{stores: stores, recorder: recorder}
}

// Handle 实现 HTTP 处理函数。
// 请求体不是 JSON 对象时返回 400，超过 maxBodyBytes 时返回 413，两种情况都不写入；
// 存储相关的错误原样返回给宿主。
func (h *DocumentInsert) Handle(ctx context.Context, r *http.Request, log *logrus.Entry) (*domain.Response, error) {
	log.Info("Received a request to insert data into Cosmos DB.")

	body, err := readBody(r.Body)
	if errors.Is(err, errBodyTooLarge) {
		log.WithField("limit_bytes", maxBodyBytes).Warn("Rejected oversized document payload")
		return domain.Text(http.StatusRequestEntityTooLarge, bodyTooLargeMessage), nil
	}
	if err != nil {
		return domain.Text(http.StatusBadRequest, "Invalid JSON payload"), nil
	}

	doc, err := domain.ParseDocument(body)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidJSON) {
			log.WithError(err).Warn("Rejected document payload")
			return domain.Text(http.StatusBadRequest, "Invalid JSON payload"), nil
		}
		return nil, err
	}

	store, err := h.stores.Store(ctx)
	if err != nil {
		return nil, err
	}

	id, err := store.InsertDocument(ctx, InsertDatabase, InsertCollection, doc)
	if err != nil {
		return nil, err
	}
	if h.recorder != nil {
		h.recorder.RecordDocumentInserted(store.Name())
	}
	log.WithFields(logrus.Fields{"document_id": id, "store": store.Name()}).Debug("Document inserted")

	return domain.Text(http.StatusOK, fmt.Sprintf("Data inserted: %s", doc.String())), nil
}
