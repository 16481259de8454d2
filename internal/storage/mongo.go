package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/oriys/nimbus-functions/internal/domain"
)

// documentInserter 是 *mongo.Collection 中写入所需的子集。
type documentInserter interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// MongoStore 基于 MongoDB 驱动的文档存储，兼容 Cosmos DB 的 Mongo API。
type MongoStore struct {
	client     *mongo.Client
	collection func(database, collection string) documentInserter
}

// NewMongoStore 创建 MongoDB 客户端。驱动按需建立连接，这里不会阻塞等待服务器。
func NewMongoStore(ctx context.Context, uri string, timeout time.Duration) (*MongoStore, error) {
	opts := options.Client().ApplyURI(uri)
	if timeout > 0 {
		opts.SetConnectTimeout(timeout).SetServerSelectionTimeout(timeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w: %w", domain.ErrStoreUnavailable, err)
	}

	return &MongoStore{
		client: client,
		collection: func(database, collection string) documentInserter {
			return client.Database(database).Collection(collection)
		},
	}, nil
}

// InsertDocument 将文档写入指定集合。
// 文档按普通 JSON 转成有序的 bson.D，字段顺序与请求体一致。
func (s *MongoStore) InsertDocument(ctx context.Context, database, collection string, doc *domain.Document) (string, error) {
	payload, err := documentBSON(doc.Raw)
	if err != nil {
		return "", fmt.Errorf("encode document: %w: %w", domain.ErrInsertFailed, err)
	}

	res, err := s.collection(database, collection).InsertOne(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("insert into %s.%s: %w: %w", database, collection, domain.ErrInsertFailed, err)
	}
	return insertedID(res.InsertedID), nil
}

// documentBSON 将 JSON 对象转换为 bson.D。
// $date、$oid 这类键不按 Extended JSON 解释，按普通字段原样保留。
// 整数转为 int64，其余数字转为 float64。
func documentBSON(raw []byte) (bson.D, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("document is not a json object")
	}
	return decodeObject(dec)
}

func decodeObject(dec *json.Decoder) (bson.D, error) {
	doc := bson.D{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		doc = append(doc, bson.E{Key: key, Value: val})
	}
	// 消费结尾的 '}'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return decodeObject(dec)
		case '[':
			arr := bson.A{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		return v.Float64()
	default:
		// string、bool 或 nil
		return v, nil
	}
}

func insertedID(id interface{}) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Ping 检查主节点是否可达。
func (s *MongoStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo ping: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Close 断开客户端。
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Name 返回 "mongo"。
func (s *MongoStore) Name() string { return "mongo" }
