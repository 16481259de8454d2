// 本文件实现访问函数宿主 HTTP 接口的客户端。
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/oriys/nimbus-functions/internal/telemetry"
)

// Client 是函数宿主的 HTTP 客户端。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 从 viper 配置读取 api_url 创建客户端。
// 请求经过 otelhttp 传输层，调用链路可以与宿主端的追踪关联。
func NewClient() *Client {
	baseURL := viper.GetString("api_url")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: telemetry.HTTPClientTransport(http.DefaultTransport),
		},
	}
}

// InvokeResult 是一次 HTTP 调用的结果。
type InvokeResult struct {
	Function     string `json:"function" yaml:"function"`
	StatusCode   int    `json:"status_code" yaml:"status_code"`
	InvocationID string `json:"invocation_id,omitempty" yaml:"invocation_id,omitempty"`
	ContentType  string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	DurationMs   int64  `json:"duration_ms" yaml:"duration_ms"`
	Body         string `json:"body" yaml:"body"`
}

// Succeeded 返回状态码是否为 2xx。
func (r *InvokeResult) Succeeded() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// FunctionInfo 是宿主注册的函数描述。
type FunctionInfo struct {
	Name     string   `json:"name" yaml:"name"`
	Triggers []string `json:"triggers" yaml:"triggers"`
}

// APIError 是宿主返回的错误响应。
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	RequestID  string `json:"request_id"`
	TraceID    string `json:"trace_id"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
	if e.TraceID != "" {
		msg += " trace_id=" + e.TraceID
	}
	return msg
}

// Invoke 通过 /api/{function} 调用函数。处理函数自己的 4xx/5xx 响应不视为错误。
func (c *Client) Invoke(ctx context.Context, method, function string, query url.Values, body []byte) (*InvokeResult, error) {
	u := fmt.Sprintf("%s/api/%s", c.baseURL, url.PathEscape(function))
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", function, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return nil, decodeAPIError(resp.StatusCode, data)
	}

	return &InvokeResult{
		Function:     function,
		StatusCode:   resp.StatusCode,
		InvocationID: resp.Header.Get("X-Invocation-Id"),
		ContentType:  resp.Header.Get("Content-Type"),
		DurationMs:   time.Since(start).Milliseconds(),
		Body:         string(data),
	}, nil
}

// ListFunctions 返回宿主已注册的函数。
func (c *Client) ListFunctions(ctx context.Context) ([]FunctionInfo, error) {
	var out []FunctionInfo
	if err := c.getJSON(ctx, "/admin/functions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ready 查询宿主就绪状态。
func (c *Client) Ready(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	if err := c.getJSON(ctx, "/health/ready", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
