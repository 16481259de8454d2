package domain

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestParseLogLevel 测试日志级别解析，包括大小写与未知值回退。
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LogLevelDebug},
		{"DEBUG", LogLevelDebug},
		{"Warning", LogLevelWarning},
		{"error", LogLevelError},
		{"CRITICAL", LogLevelCritical},
		{"info", LogLevelInfo},
		{"", LogLevelInfo},
		{"verbose", LogLevelInfo},
		{"warn", LogLevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLogLevel(tt.in); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if got := LogLevelWarning.Upper(); got != "WARNING" {
		t.Errorf("Upper() = %q", got)
	}
}

func TestMessageText(t *testing.T) {
	msg := &Message{ID: "1", Body: []byte("héllo")}
	text, err := msg.Text()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "héllo" {
		t.Errorf("text = %q", text)
	}

	bad := &Message{ID: "2", Body: []byte{0xff, 0xfe, 0xfd}}
	if _, err := bad.Text(); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}

	empty := &Message{ID: "3"}
	if text, err := empty.Text(); err != nil || text != "" {
		t.Errorf("empty body: text=%q err=%v", text, err)
	}
}

// TestParseDocument 测试文档解析只接受 JSON 对象。
func TestParseDocument(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		wantRaw string
	}{
		{name: "object", body: `{"a": 1, "b": "x"}`, wantRaw: `{"a":1,"b":"x"}`},
		{name: "nested", body: ` {"a": {"b": [1, 2]}} `, wantRaw: `{"a":{"b":[1,2]}}`},
		{name: "empty object", body: `{}`, wantRaw: `{}`},
		{name: "empty body", body: ``, wantErr: true},
		{name: "not json", body: `not json`, wantErr: true},
		{name: "array", body: `[1,2]`, wantErr: true},
		{name: "scalar", body: `42`, wantErr: true},
		{name: "truncated", body: `{"a":`, wantErr: true},
		{name: "trailing data", body: `{"a":1}{"b":2}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseDocument([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidJSON) {
					t.Fatalf("expected ErrInvalidJSON, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if doc.String() != tt.wantRaw {
				t.Errorf("raw = %s, want %s", doc.String(), tt.wantRaw)
			}
		})
	}
}

func TestResponseWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	(&Response{Body: []byte("ok")}).Write(rec)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != ContentTypeText {
		t.Errorf("content type = %q", ct)
	}

	rec = httptest.NewRecorder()
	Text(http.StatusBadRequest, "bad").Write(rec)
	if rec.Code != http.StatusBadRequest || rec.Body.String() != "bad" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestErrorClass(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("wrap: %w", ErrDecode), "decode"},
		{ErrMissingConnectionString, "config"},
		{fmt.Errorf("mongo: %w", ErrInsertFailed), "downstream"},
		{ErrFunctionNotFound, "routing"},
		{errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		if got := ErrorClass(tt.err); got != tt.want {
			t.Errorf("ErrorClass(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
