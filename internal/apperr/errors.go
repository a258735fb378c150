package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类
type Kind string

const (
	KindValidation    Kind = "validation"    // 请求缺少租户头等，可由调用方修正
	KindFetch         Kind = "fetch"         // 上游 API 非 2xx 或 GraphQL errors
	KindNormalization Kind = "normalization" // 单条记录格式异常，跳过
	KindStore         Kind = "store"         // 数据库/事务失败
	KindNotFound      Kind = "not_found"
)

// AppError 应用错误
type AppError struct {
	Kind       Kind
	StatusCode int    // 对外 HTTP 状态码
	Message    string // 对外可见的提示
	Err        error  // 内部原因，不返回给客户端
	Retryable  bool
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Validation 参数校验错误 (400)
func Validation(message string) *AppError {
	return &AppError{Kind: KindValidation, StatusCode: http.StatusBadRequest, Message: message}
}

// Fetch 上游拉取失败 (500，可重试)
func Fetch(message string, err error) *AppError {
	return &AppError{Kind: KindFetch, StatusCode: http.StatusInternalServerError, Message: message, Err: err, Retryable: true}
}

// Normalization 记录转换失败
func Normalization(message string, err error) *AppError {
	return &AppError{Kind: KindNormalization, StatusCode: http.StatusUnprocessableEntity, Message: message, Err: err}
}

// Store 存储失败 (500)
func Store(message string, err error) *AppError {
	return &AppError{Kind: KindStore, StatusCode: http.StatusInternalServerError, Message: message, Err: err}
}

// NotFound 资源不存在 (404)
func NotFound(message string) *AppError {
	return &AppError{Kind: KindNotFound, StatusCode: http.StatusNotFound, Message: message}
}

// Is 判断错误链中是否包含指定分类
func Is(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// StatusCode 获取错误对应的 HTTP 状态码，未分类错误按 500 处理
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable 是否可重试
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}
