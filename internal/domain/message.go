package domain

import (
	"fmt"
	"net/http"
	"unicode/utf8"
)

// Message 表示队列或事件流投递给处理函数的一条消息。
// 每次调用只携带一条消息，处理函数不会修改它。
type Message struct {
	// Body 是消息的原始字节
	Body []byte
	// ID 是投递方分配的消息标识
	ID string
	// Source 描述消息来源（如 nats://stream/subject、kafka://topic/partition）
	Source string
	// Metadata 是投递方附带的属性
	Metadata map[string]string
}

// Text 将消息体按 UTF-8 解码为文本。
// 非法的字节序列返回包装了 ErrDecode 的错误。
func (m *Message) Text() (string, error) {
	if !utf8.Valid(m.Body) {
		return "", fmt.Errorf("message %q: %w", m.ID, ErrDecode)
	}
	return string(m.Body), nil
}

// Response 是 HTTP 处理函数的返回值。
type Response struct {
	// StatusCode 为 0 时按 200 处理
	StatusCode int
	// ContentType 为空时按 text/plain 处理
	ContentType string
	Body        []byte
}

// 常用的内容类型
const (
	ContentTypeText = "text/plain; charset=utf-8"
	ContentTypeHTML = "text/html; charset=utf-8"
)

// Text 构造一个纯文本响应。
func Text(status int, body string) *Response {
	return &Response{StatusCode: status, ContentType: ContentTypeText, Body: []byte(body)}
}

// Status 返回实际生效的状态码。
func (r *Response) Status() int {
	if r == nil || r.StatusCode == 0 {
		return http.StatusOK
	}
	return r.StatusCode
}

// Write 将响应写入 http.ResponseWriter。
func (r *Response) Write(w http.ResponseWriter) {
	contentType := ContentTypeText
	if r != nil && r.ContentType != "" {
		contentType = r.ContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(r.Status())
	if r != nil && len(r.Body) > 0 {
		_, _ = w.Write(r.Body)
	}
}
