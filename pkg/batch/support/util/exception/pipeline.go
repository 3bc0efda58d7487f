package exception

import (
	"errors"
	"fmt"
)

// Pipeline error kinds. Every constructor below wraps one of these, so callers test with errors.Is.
var (
	// ErrTransientExternal marks a network, API or database call that may succeed on retry.
	ErrTransientExternal = errors.New("transient external error")
	// ErrIncompleteData marks a fetch that returned fewer samples than required or null samples.
	ErrIncompleteData = errors.New("data incomplete")
	// ErrUpstreamUnavailable marks a non-success response from the weather API.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrModelNotFitted marks a forecasting model that was never trained.
	ErrModelNotFitted = errors.New("model not fitted")
	// ErrConfiguration marks invalid or missing configuration. Fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrDailyPrepFailure is raised by the parent daily job when daily preparation reports not ready.
	ErrDailyPrepFailure = errors.New("daily preparation failure")
)

// NewTransientExternalError wraps a failed external call.
func NewTransientExternalError(module, message string, cause error) *BatchError {
	return NewBatchError(module, message, join(ErrTransientExternal, cause), false, true)
}

// NewIncompleteDataError reports a batch with too few or null samples.
func NewIncompleteDataError(module string, got, want, nulls int) *BatchError {
	msg := fmt.Sprintf("retrieved data is incomplete: %d samples (need >= %d), %d null", got, want, nulls)
	return NewBatchError(module, msg, ErrIncompleteData, false, true)
}

// NewUpstreamUnavailableError reports a non-success HTTP status.
func NewUpstreamUnavailableError(module string, statusCode int) *BatchError {
	msg := fmt.Sprintf("error when retrieving the data, status-code: %d", statusCode)
	return NewBatchError(module, msg, ErrUpstreamUnavailable, false, true)
}

// NewModelNotFittedError reports a model that cannot predict. Never retried.
func NewModelNotFittedError(module, message string) *BatchError {
	return NewBatchError(module, message, ErrModelNotFitted, false, false)
}

// NewConfigurationError reports invalid configuration. Never retried.
func NewConfigurationError(module, message string, cause error) *BatchError {
	return NewBatchError(module, message, join(ErrConfiguration, cause), false, false)
}

// NewDailyPrepFailure is returned by the parent daily job when the aggregation produced no rows.
func NewDailyPrepFailure(runDate string) *BatchError {
	msg := fmt.Sprintf("daily data preparation for %s is not ready; downstream stages blocked", runDate)
	return NewBatchError("job", msg, ErrDailyPrepFailure, false, false)
}

func join(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return errors.Join(kind, cause)
}
