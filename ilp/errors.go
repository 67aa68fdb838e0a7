package ilp

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an *Error.
type ErrorCode int

const (
	// ErrInvalidName is returned for a bad table or column name
	ErrInvalidName ErrorCode = iota + 1
	// ErrInvalidValue is returned for a value that can't be encoded
	ErrInvalidValue
	// ErrBufferOverflow is returned when a buffer would exceed its maximum size
	ErrBufferOverflow
	// ErrAuthFailure is returned when authentication fails or times out
	ErrAuthFailure
	// ErrConnect is returned for socket level failures, including a broken TCP stream
	ErrConnect
	// ErrTimeout is returned when a request exceeds its deadline
	ErrTimeout
	// ErrServer is returned when the server rejects an HTTP request
	ErrServer
	// ErrProtocol is returned for protocol version mismatches and malformed responses
	ErrProtocol
	// ErrConfig is returned for invalid configuration
	ErrConfig
	// ErrInvalidAPICall is returned when an operation is not allowed in the current state
	ErrInvalidAPICall
)

var codeNames = map[ErrorCode]string{
	ErrInvalidName:    "invalid name",
	ErrInvalidValue:   "invalid value",
	ErrBufferOverflow: "buffer overflow",
	ErrAuthFailure:    "auth failure",
	ErrConnect:        "connect error",
	ErrTimeout:        "timeout",
	ErrServer:         "server error",
	ErrProtocol:       "protocol error",
	ErrConfig:         "config error",
	ErrInvalidAPICall: "invalid api call",
}

func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("error code %d", int(c))
}

// Error is the single error type surfaced to callers.
//
// Status, ServerCode, Line and ErrorID are only set for ErrServer.
type Error struct {
	Code       ErrorCode
	Msg        string
	Status     int
	ServerCode string
	Line       int
	ErrorID    string
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Msg + ": " + e.cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same Code, so callers can write
// errors.Is(err, &ilp.Error{Code: ilp.ErrInvalidName}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Errorf builds an *Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that keeps cause reachable through errors.Unwrap.
func Wrap(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), cause: cause}
}

// CodeOf returns the ErrorCode of the first *Error in err's chain, or 0.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
