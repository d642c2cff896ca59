// Package errors provides the engine's structured error type, narrowed from
// the teacher's TradSysError to the core's own error taxonomy: queue
// backpressure, wire parse failures, book invariant violations and symbol
// lookup misses.
package errors

import (
	"fmt"
	"runtime"
	"time"
)

// ErrorCode classifies a TradSysError.
type ErrorCode string

const (
	// ErrQueueFull is returned when a ring queue rejects a push because it
	// is at capacity; the caller's drop policy decides what happens next.
	ErrQueueFull ErrorCode = "QUEUE_FULL"

	// ErrParseMalformedFrame covers any tag-value frame that fails to parse
	// structurally (missing SOH terminator, unparsable tag/value pair).
	ErrParseMalformedFrame ErrorCode = "PARSE_MALFORMED_FRAME"
	// ErrParseChecksumMismatch is returned when checksum enforcement is
	// enabled and the computed checksum disagrees with tag 10.
	ErrParseChecksumMismatch ErrorCode = "PARSE_CHECKSUM_MISMATCH"
	// ErrParseUnknownMessageType covers a recognised envelope with an
	// unhandled tag 35 value.
	ErrParseUnknownMessageType ErrorCode = "PARSE_UNKNOWN_MESSAGE_TYPE"

	// ErrBookInvariant marks a detected violation of a book invariant: the
	// aggregator raises it when a book's cached best price disagrees with
	// its top-of-book level.
	ErrBookInvariant ErrorCode = "BOOK_INVARIANT_VIOLATION"
	// ErrSymbolNotFound is returned by BookManager.Get for a symbol with no
	// active book.
	ErrSymbolNotFound ErrorCode = "SYMBOL_NOT_FOUND"
)

// TradSysError is a structured error carrying a stable code, a human
// message, call-site location, optional structured details and an
// optional wrapped cause.
type TradSysError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	File      string                 `json:"file,omitempty"`
	Line      int                    `json:"line,omitempty"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface.
func (e *TradSysError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *TradSysError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a structured detail and returns the receiver.
func (e *TradSysError) WithDetail(key string, value interface{}) *TradSysError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause attaches an underlying cause and returns the receiver.
func (e *TradSysError) WithCause(cause error) *TradSysError {
	e.Cause = cause
	return e
}

// New creates a TradSysError at the caller's location.
func New(code ErrorCode, message string) *TradSysError {
	_, file, line, _ := runtime.Caller(1)
	return &TradSysError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		File:      file,
		Line:      line,
	}
}

// Newf creates a TradSysError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *TradSysError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a TradSysError carrying err as its cause, or nil if err is nil.
func Wrap(err error, code ErrorCode, message string) *TradSysError {
	if err == nil {
		return nil
	}
	_, file, line, _ := runtime.Caller(1)
	return &TradSysError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		File:      file,
		Line:      line,
		Cause:     err,
	}
}

// Wrapf creates a TradSysError with a formatted message, wrapping err.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *TradSysError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Is reports whether err's chain contains a TradSysError with code.
func Is(err error, code ErrorCode) bool {
	var tradSysErr *TradSysError
	if As(err, &tradSysErr) {
		return tradSysErr.Code == code
	}
	return false
}

// As finds the first TradSysError in err's chain and stores it in target.
func As(err error, target interface{}) bool {
	if err == nil {
		return false
	}
	if tradSysErr, ok := err.(*TradSysError); ok {
		if targetPtr, ok := target.(**TradSysError); ok {
			*targetPtr = tradSysErr
			return true
		}
	}
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return As(unwrapper.Unwrap(), target)
	}
	return false
}

// Code extracts the error code from err, or "" if err isn't a TradSysError.
func Code(err error) ErrorCode {
	var tradSysErr *TradSysError
	if As(err, &tradSysErr) {
		return tradSysErr.Code
	}
	return ""
}

// IsRetryable reports whether err's code represents a transient condition
// worth retrying (queue backpressure easing, a symbol appearing later).
func IsRetryable(err error) bool {
	switch Code(err) {
	case ErrQueueFull, ErrSymbolNotFound:
		return true
	default:
		return false
	}
}
