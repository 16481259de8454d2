// Package functions 包含宿主托管的处理函数。
// 每个处理函数只处理一次触发，彼此之间不共享状态。
package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/oriys/nimbus-functions/internal/domain"
)

// 函数名称
const (
	EchoFunctionName        = "simple-function"
	LoggingDemoFunctionName = "LoggingFunction"
	SimpleLogFunctionName   = "logging_function"
	QueueFunctionName       = "queue-function"
	EventStreamFunctionName = "kafka-function"
	InsertFunctionName      = "write-function"
)

// maxBodyBytes 限制处理函数读取的请求体大小，超出时返回 413。
const maxBodyBytes = 1 << 20

const bodyTooLargeMessage = "Request body too large"

var errBodyTooLarge = errors.New("request body too large")

// readBody 最多读取 maxBodyBytes 字节，超出时返回 errBodyTooLarge 而不是截断。
func readBody(body io.Reader) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxBodyBytes {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// Echo 按名字问候调用方。
// 查询参数 name 优先，其次读取 JSON 请求体中的 name 字段；请求体无法解析时视为没有名字。
func Echo(_ context.Context, r *http.Request, log *logrus.Entry) (*domain.Response, error) {
	log.Info("Function triggered via HTTP request.")

	name := r.URL.Query().Get("name")
	if name == "" {
		data, err := readBody(r.Body)
		if errors.Is(err, errBodyTooLarge) {
			return domain.Text(http.StatusRequestEntityTooLarge, bodyTooLargeMessage), nil
		}
		name = nameFromBody(data)
	}
	if name == "" {
		return domain.Text(http.StatusBadRequest, "Please pass a name in the query string or request body"), nil
	}
	return domain.Text(http.StatusOK, fmt.Sprintf("Hello, %s!", name)), nil
}

// nameFromBody 读取 JSON 对象中的字符串字段 name，其余情况返回空字符串。
func nameFromBody(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	name, _ := payload["name"].(string)
	return name
}
