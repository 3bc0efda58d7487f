package config

import (
	"fmt"
	"time"

	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
)

// ParseRunDate parses a YYYY-MM-DD run date. An empty value yields DefaultRunDate(now, lagDays).
func ParseRunDate(value string, now time.Time, lagDays int) (time.Time, error) {
	if value == "" {
		return DefaultRunDate(now, lagDays), nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, exception.NewConfigurationError("config", fmt.Sprintf("invalid running date %q, expected YYYY-MM-DD", value), err)
	}
	return t, nil
}

// DefaultRunDate is now's calendar date minus lagDays, at UTC midnight.
func DefaultRunDate(now time.Time, lagDays int) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -lagDays)
}
