package errors

import (
	"edgetrade/pkg/errors/ecode"
	stderrors "errors"
	"fmt"
)

// codeError 带错误码的错误，可以包裹底层错误
type codeError struct {
	code int
	msg  string
	err  error
}

func (e *codeError) Error() string {
	if e.err == nil {
		return e.msg
	}
	if e.msg == "" {
		return e.err.Error()
	}
	return e.msg + ": " + e.err.Error()
}

func (e *codeError) Unwrap() error {
	return e.err
}

// Code 返回错误码
func (e *codeError) Code() int {
	return e.code
}

// WithCode 创建一个带错误码的错误
func WithCode(code int, msg string) error {
	if msg == "" {
		msg = ecode.Text(code)
	}
	return &codeError{code: code, msg: msg}
}

// WithCodef 同 WithCode，支持格式化
func WithCodef(code int, format string, args ...any) error {
	return &codeError{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap 包裹已有错误并赋予错误码，err为nil时返回nil
func Wrap(err error, code int, msg string) error {
	if err == nil {
		return nil
	}
	return &codeError{code: code, msg: msg, err: err}
}

// DecodeErr 解析出错误码和提示信息
func DecodeErr(err error) (int, string) {
	if err == nil {
		return ecode.Success, ecode.Text(ecode.Success)
	}
	var ce *codeError
	if stderrors.As(err, &ce) {
		return ce.code, err.Error()
	}
	return ecode.Unknown, err.Error()
}

// CodeOf 返回错误链上第一个错误码，没有则为 Unknown
func CodeOf(err error) int {
	code, _ := DecodeErr(err)
	return code
}

// IsCode 判断错误链上是否带有指定错误码
func IsCode(err error, code int) bool {
	for err != nil {
		var ce *codeError
		if !stderrors.As(err, &ce) {
			return false
		}
		if ce.code == code {
			return true
		}
		err = ce.err
	}
	return false
}

func Validation(format string, args ...any) error {
	return WithCodef(ecode.ValidateErr, format, args...)
}

func Rejected(format string, args ...any) error {
	return WithCodef(ecode.AdmissionRejected, format, args...)
}

func Broker(err error, msg string) error {
	return Wrap(err, ecode.BrokerErr, msg)
}

func Config(format string, args ...any) error {
	return WithCodef(ecode.ConfigErr, format, args...)
}

func NotFound(format string, args ...any) error {
	return WithCodef(ecode.NotFoundErr, format, args...)
}

func Conflict(format string, args ...any) error {
	return WithCodef(ecode.ConflictErr, format, args...)
}

// Partial 多腿操作部分失败，cause 一般是 multierr 聚合后的错误
func Partial(cause error, msg string) error {
	return Wrap(cause, ecode.PartialExecution, msg)
}

// 透传标准库
var (
	Is  = stderrors.Is
	As  = stderrors.As
	New = stderrors.New
)
