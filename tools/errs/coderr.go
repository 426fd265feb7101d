package errs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

// Wrap attaches err as the cause and records a stack trace.
// errors.Is(result, e) holds for the returned error.
func (e *CodeError) Wrap(err error) error {
	if err == nil {
		return errors.WithStack(e.clone())
	}
	return errors.WithStack(&wrapped{code: e.clone(), cause: err})
}

// WrapMsg behaves like Wrap and appends msg and key/value pairs to the detail.
func (e *CodeError) WrapMsg(err error, msg string, kv ...any) error {
	c := e.clone()
	if msg != "" || len(kv) > 0 {
		c = c.WithDetail(toString(msg, kv))
	}
	if err == nil {
		return errors.WithStack(c)
	}
	return errors.WithStack(&wrapped{code: c, cause: err})
}

func (e *CodeError) clone() *CodeError {
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: e.Detail}
}

// Is reports whether target carries the same code.
func (e *CodeError) Is(target error) bool {
	var ce *CodeError
	if !errors.As(target, &ce) {
		return false
	}
	return ce.Code == e.Code
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

type wrapped struct {
	code  *CodeError
	cause error
}

func (w *wrapped) Error() string { return w.code.Error() + ": " + w.cause.Error() }

func (w *wrapped) Unwrap() []error { return []error{w.code, w.cause} }

func (w *wrapped) Cause() error { return w.cause }

// CodeOf returns the code carried by err, or 0.
func CodeOf(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}

func toString(msg string, kv []any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(toStr(kv[i]))
		b.WriteString("=")
		b.WriteString(toStr(kv[i+1]))
	}
	return b.String()
}

func toStr(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case error:
		return x.Error()
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
