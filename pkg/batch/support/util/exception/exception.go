// Package exception provides the error type shared by every carbonlake stage.
// A BatchError records where an error happened and whether the retry policy
// may attempt the failed operation again.
package exception

import (
	"context"
	"errors"
	"fmt"
	"net"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// errorRegistry maps error names usable in configuration (retry.retryable_errors)
// to sentinel errors compared with errors.Is.
var (
	errorRegistry = make(map[string]error)
	registryMutex sync.RWMutex
)

// RegisterErrorType registers a named sentinel error.
// It panics on an empty name or a nil prototype.
func RegisterErrorType(name string, prototype error) {
	if name == "" {
		panic("error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("cannot register nil prototype for name: %s", name))
	}
	registryMutex.Lock()
	defer registryMutex.Unlock()
	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered reports whether name was registered with RegisterErrorType.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// BatchError is an error raised by a pipeline component.
type BatchError struct {
	// Module is the component that raised the error (e.g. "source", "table", "transform").
	Module string
	// Message is a concise description of the failure.
	Message string
	// OriginalErr is the wrapped cause, if any.
	OriginalErr error
	isRetryable bool
	isSkippable bool
	// StackTrace is captured at construction for debugging.
	StackTrace string
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// NewBatchError creates a new BatchError.
// The flag order (isSkippable, isRetryable) matches the rest of the code base.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

// NewBatchErrorf creates a non-retryable, non-skippable BatchError with a formatted message.
// If the last argument is an error it becomes the wrapped cause and is not used for formatting.
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	if len(a) > 0 {
		if err, ok := a[len(a)-1].(error); ok {
			originalErr = err
			a = a[:len(a)-1]
		}
	}
	return &BatchError{
		Module:      module,
		Message:     fmt.Sprintf(format, a...),
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
	}
}

// NewRetryableError is shorthand for a retryable, non-skippable BatchError.
func NewRetryableError(module, message string, originalErr error) *BatchError {
	return NewBatchError(module, message, originalErr, false, true)
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable reports whether the failed operation may be attempted again.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable reports whether the failure may be ignored by the caller.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// AsBatchError finds the first BatchError in err's chain.
func AsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsBatchError reports whether err's chain contains a BatchError.
func IsBatchError(err error) bool {
	_, ok := AsBatchError(err)
	return ok
}

// IsTemporary reports whether err looks transient.
// A BatchError's retryable flag takes precedence; otherwise network timeouts
// and a few well-known messages are treated as temporary.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if be, ok := AsBatchError(err); ok {
		return be.IsRetryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset")
}

// IsFatal reports whether err is neither retryable nor skippable.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if be, ok := AsBatchError(err); ok {
		return !be.IsRetryable() && !be.IsSkippable()
	}
	return !IsTemporary(err)
}

// IsErrorOfType checks err against a registered name, a message substring or a Go type name.
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	target, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()
	if ok && errors.Is(err, target) {
		return true
	}

	for current := err; current != nil; current = errors.Unwrap(current) {
		if strings.Contains(current.Error(), errorTypeName) {
			return true
		}
		if t := reflect.TypeOf(current); t != nil {
			if t.String() == errorTypeName || (t.Kind() == reflect.Ptr && t.Elem().String() == errorTypeName) {
				return true
			}
		}
	}
	return false
}

// ExtractErrorMessage returns a BatchError's Message, or err.Error() for other errors.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if be, ok := AsBatchError(err); ok {
		return be.Message
	}
	return err.Error()
}

func init() {
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
}
