package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/viper"

	"github.com/oriys/nimbus-functions/internal/api"
	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/oriys/nimbus-functions/internal/functions"
	"github.com/oriys/nimbus-functions/internal/host"
	"github.com/oriys/nimbus-functions/internal/logstream"
	"github.com/oriys/nimbus-functions/internal/storage"
)

func newHostServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger, _ := test.NewNullLogger()

	reg := host.NewRegistry()
	stores := storage.NewProvider(config.DocumentStoreConfig{ConnectionString: "memory://"}, nil)
	if err := functions.Register(reg, functions.Deps{Stores: stores}); err != nil {
		t.Fatalf("register: %v", err)
	}
	handler := api.NewHandler(host.NewInvoker(reg, logger, nil), nil, logger)
	srv := httptest.NewServer(api.NewRouter(&api.RouterConfig{Handler: handler, Logger: logger}))
	t.Cleanup(srv.Close)
	return srv
}

// execute 运行一条命令并返回输出，每次执行前重置 invoke 的标志变量。
func execute(t *testing.T, apiURL string, args ...string) (string, error) {
	t.Helper()
	invokeData, invokeFile, invokeQuery, invokeMethod = "", "", nil, ""

	viper.Set("api_url", apiURL)
	defer viper.Set("api_url", "")

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestInvoke(t *testing.T) {
	srv := newHostServer(t)

	out, err := execute(t, srv.URL, "invoke", "simple-function", "-q", "name=Ada")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, "Hello, Ada!") {
		t.Errorf("unexpected output: %s", out)
	}

	out, err = execute(t, srv.URL, "invoke", "simple-function", "--data", `{"name":"Bob"}`)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, "Hello, Bob!") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestInvoke_ClientErrorReturnsError(t *testing.T) {
	srv := newHostServer(t)

	out, err := execute(t, srv.URL, "invoke", "simple-function")
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(out, "Please pass a name in the query string or request body") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestInvoke_UnknownFunction(t *testing.T) {
	srv := newHostServer(t)

	_, err := execute(t, srv.URL, "invoke", "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
}

func TestInvoke_WriteFunctionJSONOutput(t *testing.T) {
	srv := newHostServer(t)
	viper.Set("output", "json")
	defer viper.Set("output", "")

	out, err := execute(t, srv.URL, "invoke", "write-function", "-d", `{"a": 1}`)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, `"status_code": 200`) || !strings.Contains(out, `Data inserted: {\"a\":1}`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestList(t *testing.T) {
	srv := newHostServer(t)

	out, err := execute(t, srv.URL, "list")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	for _, name := range []string{"simple-function", "LoggingFunction", "logging_function", "queue-function", "kafka-function", "write-function"} {
		if !strings.Contains(out, name) {
			t.Errorf("output missing %s: %s", name, out)
		}
	}
}

func TestParseQuery(t *testing.T) {
	q, err := parseQuery([]string{"level=warning", "message=a=b"})
	if err != nil {
		t.Fatalf("parseQuery: %v", err)
	}
	if q.Get("level") != "warning" || q.Get("message") != "a=b" {
		t.Errorf("unexpected values: %v", q)
	}

	if _, err := parseQuery([]string{"novalue"}); err == nil {
		t.Error("expected error for missing '='")
	}
}

func TestBuildWebSocketURL(t *testing.T) {
	tests := []struct {
		base, function, want string
		wantErr              bool
	}{
		{"http://localhost:8080", "", "ws://localhost:8080/api/logs/stream", false},
		{"https://fn.example.com/", "queue-function", "wss://fn.example.com/api/logs/stream?function=queue-function", false},
		{"ftp://host", "", "", true},
	}
	for _, tt := range tests {
		got, err := buildWebSocketURL(tt.base, "/api/logs/stream", tt.function)
		if (err != nil) != tt.wantErr {
			t.Errorf("buildWebSocketURL(%q) error = %v", tt.base, err)
			continue
		}
		if got != tt.want {
			t.Errorf("buildWebSocketURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestFollowLogs(t *testing.T) {
	logger, _ := test.NewNullLogger()
	hub := logstream.NewHub(10)
	srv := httptest.NewServer(logstream.NewHandler(hub, logger))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hub.Publish(domain.LogEntry{
					Timestamp:    time.Now(),
					Level:        "info",
					FunctionName: "queue-function",
					Message:      "Processing task: report",
				})
			}
		}
	}()

	var buf bytes.Buffer
	if err := followLogs(ctx, srv.URL, "queue-function", &buf); err != nil {
		t.Fatalf("followLogs: %v", err)
	}
	if !strings.Contains(buf.String(), "Processing task: report") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}
