package exception_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tigerroll/carbonlake/pkg/batch/support/util/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusError struct {
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

func TestNewBatchError(t *testing.T) {
	originalErr := errors.New("connection refused")
	be := exception.NewBatchError("source", "failed to fetch intensity", originalErr, false, true)

	assert.Equal(t, "source", be.Module)
	assert.Equal(t, "failed to fetch intensity", be.Message)
	assert.Equal(t, originalErr, be.Unwrap())
	assert.True(t, be.IsRetryable())
	assert.False(t, be.IsSkippable())
	assert.Equal(t, "[source] failed to fetch intensity: connection refused", be.Error())
	assert.NotEmpty(t, be.StackTrace)
}

func TestNewBatchErrorf(t *testing.T) {
	be := exception.NewBatchErrorf("table", "commit %d already exists", 7)
	assert.Equal(t, "[table] commit 7 already exists", be.Error())
	assert.Nil(t, be.Unwrap())
	assert.False(t, be.IsRetryable())

	cause := errors.New("disk full")
	wrapped := exception.NewBatchErrorf("table", "write %s", "part-0.parquet", cause)
	assert.Equal(t, "write part-0.parquet", wrapped.Message)
	assert.ErrorIs(t, wrapped, cause)
}

func TestAsBatchErrorThroughWrapping(t *testing.T) {
	be := exception.NewRetryableError("source", "status 503", nil)
	wrapped := fmt.Errorf("stage extract-intensity: %w", be)

	got, ok := exception.AsBatchError(wrapped)
	require.True(t, ok)
	assert.Same(t, be, got)
	assert.True(t, exception.IsBatchError(wrapped))
	assert.True(t, exception.IsTemporary(wrapped))
	assert.False(t, exception.IsFatal(wrapped))
}

func TestIsTemporary(t *testing.T) {
	assert.False(t, exception.IsTemporary(nil))
	assert.True(t, exception.IsTemporary(context.DeadlineExceeded))
	assert.True(t, exception.IsTemporary(errors.New("dial tcp: connection refused")))
	assert.False(t, exception.IsTemporary(errors.New("invalid character '<' looking for beginning of value")))

	nonRetryable := exception.NewBatchError("source", "status 404", errors.New("timeout"), false, false)
	assert.False(t, exception.IsTemporary(nonRetryable), "BatchError flag takes precedence over the message")
	assert.True(t, exception.IsFatal(nonRetryable))
}

func TestIsErrorOfType(t *testing.T) {
	err := fmt.Errorf("fetch: %w", &statusError{Code: 502})

	assert.True(t, exception.IsErrorOfType(err, "exception_test.statusError"))
	assert.True(t, exception.IsErrorOfType(err, "unexpected status"))
	assert.False(t, exception.IsErrorOfType(err, "net.OpError"))

	assert.True(t, exception.IsErrorTypeRegistered("context.DeadlineExceeded"))
	assert.True(t, exception.IsErrorOfType(fmt.Errorf("wrap: %w", context.DeadlineExceeded), "context.DeadlineExceeded"))
	assert.False(t, exception.IsErrorOfType(nil, "context.Canceled"))
}

func TestExtractErrorMessage(t *testing.T) {
	assert.Equal(t, "", exception.ExtractErrorMessage(nil))
	assert.Equal(t, "bad window", exception.ExtractErrorMessage(exception.NewBatchError("window", "bad window", errors.New("x"), false, false)))
	assert.Equal(t, "plain", exception.ExtractErrorMessage(errors.New("plain")))
}

func TestRegisterErrorTypePanics(t *testing.T) {
	assert.Panics(t, func() { exception.RegisterErrorType("", errors.New("x")) })
	assert.Panics(t, func() { exception.RegisterErrorType("nil", nil) })
}
