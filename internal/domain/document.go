package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document 是一个不透明的、无固定模式的 JSON 对象。
// Raw 保存紧凑化后的原始 JSON，Fields 保存解码后的字段，写入时不做任何修改。
type Document struct {
	Raw    json.RawMessage
	Fields map[string]any
}

// ParseDocument 解析请求体为文档。
// 只接受 JSON 对象；空体、非法 JSON、数组和标量都返回包装了 ErrInvalidJSON 的错误。
func ParseDocument(body []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("body is not a json object: %w", ErrInvalidJSON)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	fields := map[string]any{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidJSON)
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after json object: %w", ErrInvalidJSON)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidJSON)
	}
	return &Document{Raw: json.RawMessage(compact.Bytes()), Fields: fields}, nil
}

// String 返回文档的紧凑 JSON 表示。
func (d *Document) String() string {
	if d == nil {
		return "null"
	}
	return string(d.Raw)
}
