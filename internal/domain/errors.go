// Package domain 定义了函数宿主的核心领域模型。
package domain

import "errors"

// 领域错误定义
// 这些错误在处理函数、宿主与触发器之间传递，调用方通过 errors.Is 判断错误类别。

var (
	// ========== 载荷相关错误 ==========

	// ErrDecode 表示消息体无法按 UTF-8 解码为文本
	ErrDecode = errors.New("message body is not valid utf-8")
	// ErrInvalidJSON 表示请求体不是合法的 JSON 对象
	ErrInvalidJSON = errors.New("invalid json payload")

	// ========== 配置相关错误 ==========

	// ErrMissingConnectionString 表示文档存储的连接串未配置
	ErrMissingConnectionString = errors.New("document store connection string is not configured")
	// ErrUnsupportedStore 表示连接串对应的存储类型不受支持
	ErrUnsupportedStore = errors.New("unsupported document store")

	// ========== 宿主相关错误 ==========

	// ErrFunctionNotFound 表示请求的函数未注册
	ErrFunctionNotFound = errors.New("function not found")
	// ErrFunctionExists 表示同名函数已经注册
	ErrFunctionExists = errors.New("function already registered")
	// ErrTriggerMismatch 表示函数不支持当前触发方式
	ErrTriggerMismatch = errors.New("function does not accept this trigger")

	// ========== 存储相关错误 ==========

	// ErrStoreUnavailable 表示文档存储无法建立连接
	ErrStoreUnavailable = errors.New("document store unavailable")
	// ErrInsertFailed 表示文档写入失败
	ErrInsertFailed = errors.New("document insert failed")
)

// ErrorClass 返回错误所属的类别，用于指标标签和日志字段。
// 未识别的错误归为 unknown。
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecode), errors.Is(err, ErrInvalidJSON):
		return "decode"
	case errors.Is(err, ErrMissingConnectionString), errors.Is(err, ErrUnsupportedStore):
		return "config"
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrInsertFailed):
		return "downstream"
	case errors.Is(err, ErrFunctionNotFound), errors.Is(err, ErrTriggerMismatch):
		return "routing"
	default:
		return "unknown"
	}
}
