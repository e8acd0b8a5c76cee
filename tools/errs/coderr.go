package errs

import (
	"errors"
	"strconv"
	"strings"

	pkgerr "github.com/pkg/errors"
)

// Error codes used across the gateway. 1xxxx are generic, 2xxxx are the
// realtime-core taxonomy surfaced to clients as error frames.
const (
	CodeInternal     = 10000
	CodeArgs         = 10001
	CodeUnauthorized = 10002

	CodeAlreadyBound       = 20001
	CodeInvalidMessage     = 20002
	CodePersistenceFailure = 20003
	CodeUnboundConnection  = 20004
)

var (
	ErrInternal     = NewCodeError(CodeInternal, "internal error")
	ErrArgs         = NewCodeError(CodeArgs, "invalid argument")
	ErrUnauthorized = NewCodeError(CodeUnauthorized, "unauthorized")

	ErrAlreadyBound       = NewCodeError(CodeAlreadyBound, "connection already bound to another user")
	ErrInvalidMessage     = NewCodeError(CodeInvalidMessage, "invalid message")
	ErrPersistenceFailure = NewCodeError(CodePersistenceFailure, "message could not be persisted")
	ErrUnboundConnection  = NewCodeError(CodeUnboundConnection, "connection is not registered")
)

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

// WrapMsg clones the coded error with extra detail and attaches a stack.
func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	return pkgerr.WithStack(e.WithDetail(toString(msg, kv)))
}

// Is reports whether err carries the same code, so that
// errors.Is(err, errs.ErrAlreadyBound) works across WrapMsg/WithDetail.
func (e *CodeError) Is(err error) bool {
	var ce *CodeError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == e.Code
}

// Code extracts the code from err, or CodeInternal when err carries none.
func Code(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}

func toString(msg string, kv []any) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if i > 0 || msg != "" {
			sb.WriteString(" ")
		}
		sb.WriteString(toStr(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(toStr(kv[i+1]))
		}
	}
	return sb.String()
}

func toStr(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return "?"
	}
}
