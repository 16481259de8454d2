package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/domain"
)

func mustDocument(t *testing.T, body string) *domain.Document {
	t.Helper()
	doc, err := domain.ParseDocument([]byte(body))
	require.NoError(t, err)
	return doc
}

func TestResolveDriver(t *testing.T) {
	tests := []struct {
		cfg  config.DocumentStoreConfig
		want string
	}{
		{config.DocumentStoreConfig{ConnectionString: "mongodb://user:pw@acct.mongo.cosmos.azure.com:10255/?ssl=true"}, config.StoreDriverMongo},
		{config.DocumentStoreConfig{ConnectionString: "mongodb+srv://cluster.example.net"}, config.StoreDriverMongo},
		{config.DocumentStoreConfig{ConnectionString: "postgres://u:p@localhost/db"}, config.StoreDriverPostgres},
		{config.DocumentStoreConfig{ConnectionString: "host=localhost dbname=docs sslmode=disable"}, config.StoreDriverPostgres},
		{config.DocumentStoreConfig{ConnectionString: "memory://"}, config.StoreDriverMemory},
		{config.DocumentStoreConfig{Driver: "memory", ConnectionString: "anything"}, config.StoreDriverMemory},
		{config.DocumentStoreConfig{ConnectionString: "AccountEndpoint=https://x.documents.azure.com:443/"}, ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, resolveDriver(tt.cfg), tt.cfg.ConnectionString)
	}
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), config.DocumentStoreConfig{})
	require.ErrorIs(t, err, domain.ErrMissingConnectionString)

	_, err = Open(context.Background(), config.DocumentStoreConfig{ConnectionString: "AccountEndpoint=https://x/"})
	require.ErrorIs(t, err, domain.ErrUnsupportedStore)

	store, err := Open(context.Background(), config.DocumentStoreConfig{ConnectionString: "memory://"})
	require.NoError(t, err)
	require.Equal(t, "memory", store.Name())
}

func TestProvider_MissingConnectionStringSkipsOpen(t *testing.T) {
	opened := 0
	p := NewProvider(config.DocumentStoreConfig{}, func(context.Context, config.DocumentStoreConfig) (DocumentStore, error) {
		opened++
		return NewMemoryStore(), nil
	})

	_, err := p.Store(context.Background())
	require.ErrorIs(t, err, domain.ErrMissingConnectionString)
	require.Zero(t, opened)
	require.False(t, p.Configured())
}

func TestProvider_OpensOnceAndRetriesFailures(t *testing.T) {
	opened := 0
	fail := true
	p := NewProvider(config.DocumentStoreConfig{ConnectionString: "memory://"}, func(context.Context, config.DocumentStoreConfig) (DocumentStore, error) {
		opened++
		if fail {
			return nil, domain.ErrStoreUnavailable
		}
		return NewMemoryStore(), nil
	})
	ctx := context.Background()

	require.NoError(t, p.Ping(ctx))
	_, err := p.Store(ctx)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	fail = false
	first, err := p.Store(ctx)
	require.NoError(t, err)
	second, err := p.Store(ctx)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 2, opened)

	require.NoError(t, p.Ping(ctx))
	require.NoError(t, p.Close(ctx))
	require.NoError(t, p.Close(ctx))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	doc := mustDocument(t, `{"a":1}`)

	id, err := s.InsertDocument(ctx, "deen-mongo-db", "deen-collection", doc)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	docs := s.Documents("deen-mongo-db", "deen-collection")
	require.Len(t, docs, 1)
	require.Equal(t, `{"a":1}`, docs[0].Document.String())
	require.Empty(t, s.Documents("other", "deen-collection"))

	s.FailInserts(errors.New("quota exceeded"))
	_, err = s.InsertDocument(ctx, "deen-mongo-db", "deen-collection", doc)
	require.ErrorIs(t, err, domain.ErrInsertFailed)
	require.Len(t, s.Documents("deen-mongo-db", "deen-collection"), 1)
}

type fakeCollection struct {
	db, coll string
	got      interface{}
	err      error
}

func (f *fakeCollection) InsertOne(_ context.Context, document interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.got = document
	return &mongo.InsertOneResult{InsertedID: primitive.NewObjectID()}, nil
}

func newFakeMongo(fc *fakeCollection) *MongoStore {
	return &MongoStore{collection: func(database, collection string) documentInserter {
		fc.db, fc.coll = database, collection
		return fc
	}}
}

// TestMongoStore_InsertPreservesFieldOrder 测试写入的 bson.D 保持请求体的字段顺序。
func TestMongoStore_InsertPreservesFieldOrder(t *testing.T) {
	fc := &fakeCollection{}
	s := newFakeMongo(fc)

	id, err := s.InsertDocument(context.Background(), "deen-mongo-db", "deen-collection",
		mustDocument(t, `{"z":"last-key-first","a":{"n":2},"list":[1,2]}`))
	require.NoError(t, err)
	require.Len(t, id, 24)
	require.Equal(t, "deen-mongo-db", fc.db)
	require.Equal(t, "deen-collection", fc.coll)

	d, ok := fc.got.(bson.D)
	require.True(t, ok)
	require.Len(t, d, 3)
	require.Equal(t, "z", d[0].Key)
	require.Equal(t, "last-key-first", d[0].Value)
	require.Equal(t, "a", d[1].Key)
	require.Equal(t, "list", d[2].Key)
}

// TestMongoStore_InsertKeepsExtendedJSONKeys 测试 $date、$numberLong 等键按普通字段写入，不被转换为 BSON 类型。
func TestMongoStore_InsertKeepsExtendedJSONKeys(t *testing.T) {
	fc := &fakeCollection{}
	s := newFakeMongo(fc)

	_, err := s.InsertDocument(context.Background(), "deen-mongo-db", "deen-collection",
		mustDocument(t, `{"when":{"$date":"2020-01-01T00:00:00Z"},"n":{"$numberLong":"5"},"id":{"$oid":"5f1b2c3d4e5f6a7b8c9d0e1f"},"price":9.5,"count":3,"tags":["a",null,true],"empty":{}}`))
	require.NoError(t, err)

	want := bson.D{
		{Key: "when", Value: bson.D{{Key: "$date", Value: "2020-01-01T00:00:00Z"}}},
		{Key: "n", Value: bson.D{{Key: "$numberLong", Value: "5"}}},
		{Key: "id", Value: bson.D{{Key: "$oid", Value: "5f1b2c3d4e5f6a7b8c9d0e1f"}}},
		{Key: "price", Value: 9.5},
		{Key: "count", Value: int64(3)},
		{Key: "tags", Value: bson.A{"a", nil, true}},
		{Key: "empty", Value: bson.D{}},
	}
	require.Equal(t, want, fc.got)
}

func TestDocumentBSON_RejectsNonObject(t *testing.T) {
	_, err := documentBSON([]byte(`[1,2]`))
	require.Error(t, err)

	_, err = documentBSON([]byte(`{"a":`))
	require.Error(t, err)
}

func TestMongoStore_InsertFailure(t *testing.T) {
	s := newFakeMongo(&fakeCollection{err: errors.New("connection reset")})

	_, err := s.InsertDocument(context.Background(), "deen-mongo-db", "deen-collection", mustDocument(t, `{"a":1}`))
	require.ErrorIs(t, err, domain.ErrInsertFailed)
	require.Contains(t, err.Error(), "connection reset")
}

func TestWithConnectTimeout(t *testing.T) {
	tests := []struct {
		dsn     string
		timeout time.Duration
		want    string
	}{
		{"postgres://u:p@localhost:5432/docs?sslmode=disable", 5 * time.Second, "postgres://u:p@localhost:5432/docs?connect_timeout=5&sslmode=disable"},
		{"postgresql://localhost/docs", 1500 * time.Millisecond, "postgresql://localhost/docs?connect_timeout=2"},
		{"host=localhost dbname=docs sslmode=disable", 10 * time.Second, "host=localhost dbname=docs sslmode=disable connect_timeout=10"},
		{"host=localhost connect_timeout=3", 10 * time.Second, "host=localhost connect_timeout=3"},
		{"postgres://localhost/docs", 0, "postgres://localhost/docs"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, withConnectTimeout(tt.dsn, tt.timeout), tt.dsn)
	}
}

func TestTableName(t *testing.T) {
	require.Equal(t, "deen_collection", tableName("deen-collection"))
	require.Equal(t, "events", tableName("Events"))
}
