// Package errors defines the coded errors shared by every layer and their
// mapping onto HTTP statuses.
package errors

import (
	stdErrors "errors"
	"fmt"
	"maps"
	"net/http"
)

// Code 是对外暴露的稳定错误码，同时出现在日志和 API 响应里。
type Code string

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeInvalidAddress        Code = "INVALID_ADDRESS"
	CodeInvalidAmount         Code = "INVALID_AMOUNT"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeChainFailure          Code = "CHAIN_FAILURE"
	CodeTimeout               Code = "TIMEOUT"
	CodeRateLimited           Code = "RATE_LIMITED"
)

type descriptor struct {
	message string
	status  int
}

var descriptors = map[Code]descriptor{
	CodeUnknown:               {"internal error", http.StatusInternalServerError},
	CodeInvalidArgument:       {"invalid argument", http.StatusBadRequest},
	CodeInvalidAddress:        {"invalid address", http.StatusBadRequest},
	CodeInvalidAmount:         {"invalid amount", http.StatusBadRequest},
	CodeUnauthorized:          {"unauthorized", http.StatusUnauthorized},
	CodeNotFound:              {"resource not found", http.StatusNotFound},
	CodeConflict:              {"resource conflict", http.StatusConflict},
	CodeInitializationFailure: {"service not initialized", http.StatusInternalServerError},
	CodeStorageFailure:        {"storage failure", http.StatusInternalServerError},
	CodeChainFailure:          {"chain failure", http.StatusBadGateway},
	CodeTimeout:               {"operation timed out", http.StatusGatewayTimeout},
	CodeRateLimited:           {"too many requests", http.StatusTooManyRequests},
}

// HTTPStatus 返回错误码对应的 HTTP 状态码，未知错误码按 500 处理。
func HTTPStatus(code Code) int {
	if d, ok := descriptors[code]; ok {
		return d.status
	}
	return http.StatusInternalServerError
}

// Error 携带错误码、概要信息、底层原因和少量上下文。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
}

// Option 在构造时修改错误。
type Option func(*Error)

// WithMetadata 附加一条上下文，例如 tx_hash 或 field。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// New 创建错误；message 为空时使用错误码的默认描述。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = descriptors[code].message
		if message == "" {
			message = descriptors[CodeUnknown].message
		}
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 与 New 相同，但保留 cause 供 errors.Is/As 使用。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 按错误码比较，因此 errors.Is(err, New(CodeTimeout, "")) 可用于分类。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if e == nil || !ok || t == nil {
		return false
	}
	return e.code == t.code
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Status 返回该错误对应的 HTTP 状态码。
func (e *Error) Status() int {
	return HTTPStatus(e.Code())
}

// Metadata 返回上下文的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	return maps.Clone(e.metadata)
}

// From 在错误链中查找 *Error。
func From(err error) (*Error, bool) {
	var target *Error
	if err != nil && stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误链中第一个 *Error 的错误码，找不到时为 UNKNOWN。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}
