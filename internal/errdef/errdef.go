package errdef

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnknown    Code = "unknown"
	CodeHTTP       Code = "http"
	CodeScript     Code = "script"
	CodeFilesystem Code = "filesystem"
	CodeParse      Code = "parse"
	CodeHistory    Code = "history"
	CodeStorage    Code = "storage"
	CodeConfig     Code = "config"
)

// Error carries a coarse category so callers can decide how to surface a failure
// without matching on message text.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns nil when err is nil so call sites can wrap unconditionally.
func Wrap(code Code, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf reports the outermost code found in the chain.
func CodeOf(err error) Code {
	var typed *Error
	if errors.As(err, &typed) && typed != nil {
		return typed.Code
	}
	return CodeUnknown
}

func Is(err error, code Code) bool {
	for err != nil {
		var typed *Error
		if !errors.As(err, &typed) || typed == nil {
			return false
		}
		if typed.Code == code {
			return true
		}
		err = typed.Err
	}
	return false
}
