// 该文件包含路由与处理器的端到端测试，使用内存文档存储与空日志记录器。
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/functions"
	"github.com/oriys/nimbus-functions/internal/host"
	"github.com/oriys/nimbus-functions/internal/storage"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

type testEnv struct {
	router http.Handler
	hook   *test.Hook
	store  *storage.MemoryStore
}

// newTestEnv 构建完整的路由器。connection 为空时 write-function 会因缺少连接串而失败。
func newTestEnv(t *testing.T, connection string, checks map[string]Pinger) *testEnv {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	mem := storage.NewMemoryStore()
	provider := storage.NewProvider(config.DocumentStoreConfig{ConnectionString: connection},
		func(context.Context, config.DocumentStoreConfig) (storage.DocumentStore, error) {
			return mem, nil
		})

	reg := host.NewRegistry()
	if err := functions.Register(reg, functions.Deps{Stores: provider}); err != nil {
		t.Fatalf("register functions: %v", err)
	}

	handler := NewHandler(host.NewInvoker(reg, logger, nil), checks, logger)
	return &testEnv{
		router: NewRouter(&RouterConfig{Handler: handler, Logger: logger, ServiceName: "test"}),
		hook:   hook,
		store:  mem,
	}
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func TestInvokeHTTP_Echo(t *testing.T) {
	env := newTestEnv(t, "", nil)

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"query name", http.MethodGet, "/api/simple-function?name=Ada", "", http.StatusOK, "Hello, Ada!"},
		{"body name", http.MethodPost, "/api/simple-function", `{"name":"Bob"}`, http.StatusOK, "Hello, Bob!"},
		{"query wins", http.MethodPost, "/api/simple-function?name=Q", `{"name":"B"}`, http.StatusOK, "Hello, Q!"},
		{"missing", http.MethodGet, "/api/simple-function", "", http.StatusBadRequest,
			"Please pass a name in the query string or request body"},
		{"malformed body", http.MethodPost, "/api/simple-function", `{"name":`, http.StatusBadRequest,
			"Please pass a name in the query string or request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(tt.method, tt.target, tt.body)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := rr.Body.String(); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
			if rr.Header().Get("X-Invocation-Id") == "" {
				t.Error("missing X-Invocation-Id header")
			}
		})
	}
}

func TestInvokeHTTP_UnknownFunction(t *testing.T) {
	env := newTestEnv(t, "", nil)

	rr := env.do(http.MethodGet, "/api/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(resp.Error, "nope") {
		t.Errorf("error = %q", resp.Error)
	}
	if resp.RequestID == "" {
		t.Error("expected request_id")
	}
}

func TestInvokeHTTP_MessageOnlyFunction(t *testing.T) {
	env := newTestEnv(t, "", nil)

	rr := env.do(http.MethodPost, "/api/queue-function", "hello")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestInvokeHTTP_LoggingDemo(t *testing.T) {
	env := newTestEnv(t, "", nil)

	rr := env.do(http.MethodGet, "/api/LoggingFunction?level=warning&message=%3Cb%3Ehi%3C%2Fb%3E", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "WARNING") {
		t.Error("page should contain the upper-cased level")
	}
	if strings.Contains(body, "<b>hi</b>") {
		t.Error("message must be escaped")
	}
}

func TestInvokeHTTP_WriteFunction(t *testing.T) {
	t.Run("missing connection string", func(t *testing.T) {
		env := newTestEnv(t, "", nil)
		rr := env.do(http.MethodPost, "/api/write-function", `{"a":1}`)
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rr.Code)
		}
	})

	t.Run("inserted", func(t *testing.T) {
		env := newTestEnv(t, "memory://", nil)
		rr := env.do(http.MethodPost, "/api/write-function", `{"a": 1, "b": "x"}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
		}
		if got := rr.Body.String(); got != `Data inserted: {"a":1,"b":"x"}` {
			t.Errorf("body = %q", got)
		}
		if n := len(env.store.Documents(functions.InsertDatabase, functions.InsertCollection)); n != 1 {
			t.Errorf("stored documents = %d, want 1", n)
		}
	})

	t.Run("invalid payload", func(t *testing.T) {
		env := newTestEnv(t, "memory://", nil)
		rr := env.do(http.MethodPost, "/api/write-function", `[1,2]`)
		if rr.Code != http.StatusBadRequest || rr.Body.String() != "Invalid JSON payload" {
			t.Errorf("got %d %q", rr.Code, rr.Body.String())
		}
		if n := len(env.store.Documents(functions.InsertDatabase, functions.InsertCollection)); n != 0 {
			t.Errorf("stored documents = %d, want 0", n)
		}
	})
}

func TestInvokeCustomHandler(t *testing.T) {
	env := newTestEnv(t, "", nil)

	payload := `{"Data":{"myQueueItem":"\"write report\""},"Metadata":{"Id":"m-1","DequeueCount":1}}`
	rr := env.do(http.MethodPost, "/queue-function", payload)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var resp customHandlerResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Logs) != 1 || !strings.HasPrefix(resp.Logs[0], "Executed queue-function") {
		t.Errorf("Logs = %v", resp.Logs)
	}
	if resp.ReturnValue != nil {
		t.Errorf("ReturnValue = %v, want nil", resp.ReturnValue)
	}

	var found bool
	for _, e := range env.hook.AllEntries() {
		if e.Message == "Processing task: write report" {
			found = true
			if e.Data["trigger"] != "queue" {
				t.Errorf("trigger = %v, want queue", e.Data["trigger"])
			}
		}
	}
	if !found {
		t.Error("queue handler did not log the task")
	}
}

func TestInvokeCustomHandler_Errors(t *testing.T) {
	env := newTestEnv(t, "", nil)

	if rr := env.do(http.MethodPost, "/queue-function", "not json"); rr.Code != http.StatusBadRequest {
		t.Errorf("malformed payload status = %d, want 400", rr.Code)
	}
	if rr := env.do(http.MethodPost, "/missing-function", `{"Data":{}}`); rr.Code != http.StatusNotFound {
		t.Errorf("unknown function status = %d, want 404", rr.Code)
	}
}

func TestCustomHandlerEventType(t *testing.T) {
	tests := []struct {
		md   map[string]string
		want string
	}{
		{map[string]string{"DequeueCount": "1"}, "com.nimbus.queue.message"},
		{map[string]string{"SequenceNumber": "7"}, "com.nimbus.eventstream.record"},
		{map[string]string{}, "com.nimbus.customhandler.invoke"},
	}
	for _, tt := range tests {
		if got := customHandlerEventType(tt.md); got != tt.want {
			t.Errorf("customHandlerEventType(%v) = %q, want %q", tt.md, got, tt.want)
		}
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, "", map[string]Pinger{"documentstore": stubPinger{}})
	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		if rr := env.do(http.MethodGet, path, ""); rr.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rr.Code)
		}
	}

	failing := newTestEnv(t, "", map[string]Pinger{"documentstore": stubPinger{err: errors.New("down")}})
	if rr := failing.do(http.MethodGet, "/health/ready", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("ready status = %d, want 503", rr.Code)
	}
}

func TestListFunctions(t *testing.T) {
	env := newTestEnv(t, "", nil)

	rr := env.do(http.MethodGet, "/admin/functions", "")
	var got []functionInfo
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("functions = %d, want 6", len(got))
	}
	for _, fn := range got {
		if fn.Name == functions.SimpleLogFunctionName && len(fn.Triggers) != 2 {
			t.Errorf("%s triggers = %v", fn.Name, fn.Triggers)
		}
	}
}
