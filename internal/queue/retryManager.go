package queue

import (
	"errors"
	"math/rand"
	"time"

	"github.com/ds124wfegd/smartblood/internal/entity"
)

// RetryManager manages retry logic for failed fan-out tasks
type RetryManager struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryManager creates a new RetryManager
func NewRetryManager(maxRetries int, baseDelay time.Duration) *RetryManager {
	return &RetryManager{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   baseDelay * 16,
	}
}

// ShouldRetry determines if a task should be retried and returns the delay
func (r *RetryManager) ShouldRetry(task *FanoutTask, err error) (bool, time.Duration) {
	if task.Attempt >= r.maxRetries {
		return false, 0
	}

	if !IsRetryable(err) {
		return false, 0
	}

	return true, r.calculateBackoff(task.Attempt + 1)
}

// IsRetryable reports whether err is transient. Missing records, rejected
// input and stale transitions will fail the same way on every attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, entity.ErrStoreUnavailable):
		return true
	case errors.Is(err, entity.ErrNotFound),
		errors.Is(err, entity.ErrValidation),
		errors.Is(err, entity.ErrInvalidTransition):
		return false
	}
	return true
}

// calculateBackoff calculates exponential backoff delay with jitter
func (r *RetryManager) calculateBackoff(attempt int) time.Duration {
	if attempt <= 0 || r.baseDelay <= 0 {
		return r.baseDelay
	}

	// Exponential backoff: base * 2^(attempt-1)
	backoff := r.baseDelay * time.Duration(1<<(attempt-1))

	// Apply jitter (±25%)
	if quarter := int64(backoff / 4); quarter > 0 {
		jitter := time.Duration(rand.Int63n(quarter))
		if rand.Intn(2) == 0 {
			backoff += jitter
		} else {
			backoff -= jitter
		}
	}

	if backoff > r.maxDelay {
		backoff = r.maxDelay
	}
	return backoff
}
