package retry

import (
	"context"
	"time"

	"github.com/tigerroll/carbonlake/pkg/batch/core/config"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/exception"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
)

// RetryPolicy decides whether a failed operation is attempted again and how
// long to wait before doing so.
type RetryPolicy interface {
	// ShouldRetry determines if a given error is retryable.
	ShouldRetry(err error) bool
	// GetBackoffInterval returns the wait in milliseconds before attempt+1.
	GetBackoffInterval(attempt int) int
	// GetMaxAttempts returns the total number of attempts, including the first.
	GetMaxAttempts() int
}

// DefaultRetryPolicyFactory creates fixed-interval policies.
type DefaultRetryPolicyFactory struct{}

// NewDefaultRetryPolicyFactory creates a new DefaultRetryPolicyFactory.
func NewDefaultRetryPolicyFactory() *DefaultRetryPolicyFactory {
	return &DefaultRetryPolicyFactory{}
}

// Create returns a policy allowing maxAttempts attempts spaced by
// initialInterval milliseconds. Errors are retryable when they carry the
// BatchError retryable flag or match one of retryableExceptions by type name.
func (f *DefaultRetryPolicyFactory) Create(maxAttempts int, initialInterval int, retryableExceptions []string) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &defaultRetryPolicy{
		maxAttempts:         maxAttempts,
		initialInterval:     initialInterval,
		retryableExceptions: retryableExceptions,
	}
}

// NewRetryPolicy builds the policy described by the retry section of the configuration.
func NewRetryPolicy(cfg *config.RetryConfig) RetryPolicy {
	return NewDefaultRetryPolicyFactory().Create(cfg.MaxAttempts, cfg.InitialInterval, cfg.RetryableErrors)
}

type defaultRetryPolicy struct {
	maxAttempts         int
	initialInterval     int
	retryableExceptions []string
}

func (p *defaultRetryPolicy) GetMaxAttempts() int {
	return p.maxAttempts
}

func (p *defaultRetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if be, ok := exception.AsBatchError(err); ok && be.IsRetryable() {
		return true
	}
	for _, typeName := range p.retryableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

// GetBackoffInterval always returns the initial interval.
func (p *defaultRetryPolicy) GetBackoffInterval(attempt int) int {
	return p.initialInterval
}

var _ RetryPolicy = (*defaultRetryPolicy)(nil)

// Execute runs op until it succeeds, returns a non-retryable error, or the
// policy's attempts are used up. The last error is returned. Waiting between
// attempts stops early when ctx is cancelled.
func Execute(ctx context.Context, policy RetryPolicy, name string, op func(ctx context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt >= policy.GetMaxAttempts() || !policy.ShouldRetry(err) {
			return err
		}
		wait := time.Duration(policy.GetBackoffInterval(attempt)) * time.Millisecond
		logger.Warnf("%s failed (attempt %d/%d), retrying in %s: %v", name, attempt, policy.GetMaxAttempts(), wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
