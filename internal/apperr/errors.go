// Package apperr 定义业务错误类型。
//
// 所有核心操作返回的错误都带有一个机器可读的 Kind 和一段可读的描述，
// 由 HTTP 边界统一转换为响应码，不会导致进程崩溃。
package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind string

const (
	KindValidation           Kind = "VALIDATION_ERROR"
	KindInsufficientFunds    Kind = "INSUFFICIENT_FUNDS"
	KindNotFound             Kind = "NOT_FOUND"
	KindDuplicateIdentifier  Kind = "DUPLICATE_IDENTIFIER"
	KindDuplicateDisplayName Kind = "DUPLICATE_DISPLAY_NAME"
	KindWrongSecret          Kind = "WRONG_SECRET"
	KindSuspended            Kind = "SUSPENDED"
	KindForbidden            Kind = "FORBIDDEN"
	KindInvalidArgument      Kind = "INVALID_ARGUMENT"
	KindInternal             Kind = "INTERNAL"
)

// 用于 errors.Is 判断的哨兵错误，只比较 Kind
var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrInsufficientFunds    = &Error{Kind: KindInsufficientFunds}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrDuplicateIdentifier  = &Error{Kind: KindDuplicateIdentifier}
	ErrDuplicateDisplayName = &Error{Kind: KindDuplicateDisplayName}
	ErrWrongSecret          = &Error{Kind: KindWrongSecret}
	ErrSuspended            = &Error{Kind: KindSuspended}
	ErrForbidden            = &Error{Kind: KindForbidden}
	ErrInvalidArgument      = &Error{Kind: KindInvalidArgument}
)

// Error 业务错误
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按 Kind 匹配
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf 返回错误链上第一个业务错误的 Kind，非业务错误返回 KindInternal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
