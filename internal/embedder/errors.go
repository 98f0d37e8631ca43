package embedder

import (
	"errors"
	"fmt"
)

// Code identifies the outcome class of an engine call. The numeric values are
// stable and appear verbatim in the daemon and MCP wire protocols.
type Code int

const (
	// CodeSuccess indicates the call completed normally.
	CodeSuccess Code = 0

	// CodeNullPointer indicates a structurally missing input, such as an
	// empty request payload where one is required.
	CodeNullPointer Code = 1

	// CodeInvalidUTF8 indicates input text that is not valid UTF-8.
	CodeInvalidUTF8 Code = 2

	// CodeInitializationFailed indicates the model could not be loaded.
	CodeInitializationFailed Code = 3

	// CodeEmbeddingFailed indicates inference failed after initialization.
	CodeEmbeddingFailed Code = 4

	// CodeInvalidHandle indicates an unknown or released handle.
	CodeInvalidHandle Code = 5

	// CodeBufferTooSmall indicates a caller-supplied buffer cannot hold the
	// model's output dimension.
	CodeBufferTooSmall Code = 6
)

// String returns the symbolic name of the code.
func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "Success"
	case CodeNullPointer:
		return "NullPointer"
	case CodeInvalidUTF8:
		return "InvalidUtf8"
	case CodeInitializationFailed:
		return "InitializationFailed"
	case CodeEmbeddingFailed:
		return "EmbeddingFailed"
	case CodeInvalidHandle:
		return "InvalidHandle"
	case CodeBufferTooSmall:
		return "BufferTooSmall"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error is an engine failure carrying its code, an optional human-readable
// message, and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return e.Code.String()
	}
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, ErrBufferTooSmall) matches any BufferTooSmall failure
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinel values for errors.Is classification. Failing calls return *Error
// instances carrying one of these codes plus contextual detail.
var (
	ErrNullPointer          = &Error{Code: CodeNullPointer}
	ErrInvalidUTF8          = &Error{Code: CodeInvalidUTF8}
	ErrInitializationFailed = &Error{Code: CodeInitializationFailed}
	ErrEmbeddingFailed      = &Error{Code: CodeEmbeddingFailed}
	ErrInvalidHandle        = &Error{Code: CodeInvalidHandle}
	ErrBufferTooSmall       = &Error{Code: CodeBufferTooSmall}
)

// CodeOf classifies any error returned by the engine. A nil error is
// CodeSuccess; errors that did not originate here classify as EmbeddingFailed.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeEmbeddingFailed
}

// newError builds a coded error with a formatted message.
func newError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// wrapError builds a coded error wrapping a cause.
func wrapError(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}
