// Package model defines the Open-Meteo archive payload.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// RawBatch is the decoded body of an Open-Meteo archive response.
type RawBatch struct {
	Latitude             float64           `json:"latitude"`
	Longitude            float64           `json:"longitude"`
	GenerationTimeMs     float64           `json:"generationtime_ms"`
	UTCOffsetSeconds     int               `json:"utc_offset_seconds"`
	Timezone             string            `json:"timezone"`
	TimezoneAbbreviation string            `json:"timezone_abbreviation"`
	Elevation            float64           `json:"elevation"`
	HourlyUnits          map[string]string `json:"hourly_units"`
	Hourly               HourlySeries      `json:"hourly"`
}

// HourlySeries holds the "time" axis and one value series per requested variable.
// A nil entry in a series is a missing sample.
type HourlySeries struct {
	Time   []string
	Values map[string][]*float64
}

// UnmarshalJSON decodes the hourly object. Every series must be as long as the time axis.
func (h *HourlySeries) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	timeRaw, ok := raw["time"]
	if !ok {
		return errors.New("hourly.time is missing")
	}
	if err := json.Unmarshal(timeRaw, &h.Time); err != nil {
		return fmt.Errorf("hourly.time: %w", err)
	}
	h.Values = make(map[string][]*float64, len(raw)-1)
	for name, v := range raw {
		if name == "time" {
			continue
		}
		var series []*float64
		if err := json.Unmarshal(v, &series); err != nil {
			return fmt.Errorf("hourly.%s: %w", name, err)
		}
		if len(series) != len(h.Time) {
			return fmt.Errorf("hourly.%s has %d samples for %d timestamps", name, len(series), len(h.Time))
		}
		h.Values[name] = series
	}
	return nil
}

// MarshalJSON writes the series back in the API layout.
func (h HourlySeries) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(h.Values)+1)
	out["time"] = h.Time
	for name, series := range h.Values {
		out[name] = series
	}
	return json.Marshal(out)
}

// Series returns the named series and whether it was present.
func (h HourlySeries) Series(name string) ([]*float64, bool) {
	s, ok := h.Values[name]
	return s, ok
}

// Completeness counts the samples of a series and how many are null.
func (b *RawBatch) Completeness(variable string) (samples, nulls int) {
	series, ok := b.Hourly.Series(variable)
	if !ok {
		return 0, 0
	}
	for _, v := range series {
		if v == nil {
			nulls++
		}
	}
	return len(series), nulls
}
