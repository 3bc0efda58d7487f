package retry

import (
	"time"

	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
)

// RetryPolicy decides whether a failed attempt may be repeated and how long to wait before it.
type RetryPolicy interface {
	// ShouldRetry determines if a given error is retryable.
	ShouldRetry(err error) bool
	// GetBackoffInterval returns the wait before the given attempt (starting from 1) is retried.
	GetBackoffInterval(attempt int) time.Duration
	// GetMaxAttempts returns the maximum number of attempts, including the first one.
	GetMaxAttempts() int
	// GetTimeout returns the per-attempt timeout. Zero means no timeout.
	GetTimeout() time.Duration
}

// Policy is the retry policy object handed to Execute: {max_attempts, backoff, timeout}.
// Backoff is a fixed delay between attempts.
type Policy struct {
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=1"`
	Backoff     time.Duration `yaml:"backoff" validate:"gte=0"`
	Timeout     time.Duration `yaml:"timeout" validate:"gte=0"`
	// RetryableExceptions lists extra error names matched with exception.IsErrorOfType.
	RetryableExceptions []string `yaml:"retryable_exceptions"`
}

// NoRetry runs an operation exactly once without a timeout.
var NoRetry = Policy{MaxAttempts: 1}

// GetMaxAttempts returns the maximum number of attempts. Values below 1 are treated as 1.
func (p Policy) GetMaxAttempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// GetBackoffInterval returns the fixed backoff regardless of attempt.
func (p Policy) GetBackoffInterval(attempt int) time.Duration {
	return p.Backoff
}

// GetTimeout returns the per-attempt timeout.
func (p Policy) GetTimeout() time.Duration {
	return p.Timeout
}

// ShouldRetry retries pipeline-temporary errors and anything matching RetryableExceptions.
// Model-not-fitted, configuration and daily-prep failures are never retried.
func (p Policy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if exception.IsFatal(err) {
		return false
	}
	if exception.IsTemporary(err) {
		return true
	}
	for _, typeName := range p.RetryableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

var _ RetryPolicy = Policy{}
