// Package reader fetches hourly observations from the Open-Meteo archive API.
package reader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tigerroll/weatherflow/internal/config"
	"github.com/tigerroll/weatherflow/internal/domain/model"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

const ModuleOpenMeteoReader = "OpenMeteoReader"

// FetchRequest selects the location, date range and hourly variables of one fetch.
type FetchRequest struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Variables []string  `json:"variables"`
	Timezone  string    `json:"timezone"`
}

// Fetcher returns a validated batch of hourly observations.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (*model.RawBatch, error)
}

// OpenMeteoClient calls the archive endpoint through a circuit breaker and applies the completeness gate.
type OpenMeteoClient struct {
	baseURL    string
	apiToken   string
	minSamples int
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewOpenMeteoClient creates a client for cfg.URL. A nil client uses one with cfg.Timeout.
func NewOpenMeteoClient(cfg config.WeatherAPIConfig, client *http.Client) *OpenMeteoClient {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	minSamples := cfg.MinSamples
	if minSamples <= 0 {
		minSamples = 24
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("Circuit breaker '%s' changed from %s to %s.", name, from, to)
		},
	})
	return &OpenMeteoClient{
		baseURL:    cfg.URL,
		apiToken:   cfg.APIToken,
		minSamples: minSamples,
		client:     client,
		breaker:    cb,
	}
}

// RequestFor builds the request of one run date from the configured location.
func RequestFor(cfg config.WeatherAPIConfig, runDate time.Time) FetchRequest {
	return FetchRequest{
		Latitude:  cfg.Latitude,
		Longitude: cfg.Longitude,
		StartDate: runDate,
		EndDate:   runDate,
		Variables: cfg.Variables,
		Timezone:  cfg.Timezone,
	}
}

// Fetch performs one GET. It fails with an upstream-unavailable error on a non-200 status and with a
// data-incomplete error when the temperature series has fewer than the required samples or any null.
func (c *OpenMeteoClient) Fetch(ctx context.Context, req FetchRequest) (*model.RawBatch, error) {
	endpoint, err := c.buildURL(req)
	if err != nil {
		return nil, exception.NewConfigurationError(ModuleOpenMeteoReader, "invalid weather API URL", err)
	}
	logger.Infof("Retrieving weather data from API for %s..%s.", req.StartDate.Format(time.DateOnly), req.EndDate.Format(time.DateOnly))

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, endpoint)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, exception.NewTransientExternalError(ModuleOpenMeteoReader, "weather API circuit is open", err)
		}
		return nil, err
	}
	batch := result.(*model.RawBatch)

	samples, nulls := batch.Completeness(config.TemperatureVariable)
	if samples < c.minSamples || nulls > 0 {
		return nil, exception.NewIncompleteDataError(ModuleOpenMeteoReader, samples, c.minSamples, nulls)
	}
	logger.Infof("Retrieved %d complete hourly samples.", samples)
	return batch, nil
}

func (c *OpenMeteoClient) do(ctx context.Context, endpoint string) (*model.RawBatch, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, exception.NewBatchError(ModuleOpenMeteoReader, "failed to create API request", err, false, false)
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, exception.NewTransientExternalError(ModuleOpenMeteoReader, "API call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.Warnf("Weather API answered %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		return nil, exception.NewUpstreamUnavailableError(ModuleOpenMeteoReader, resp.StatusCode)
	}

	var batch model.RawBatch
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, exception.NewBatchError(ModuleOpenMeteoReader, "failed to decode API response", err, false, false)
	}
	return &batch, nil
}

func (c *OpenMeteoClient) buildURL(req FetchRequest) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(req.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(req.Longitude, 'f', -1, 64))
	q.Set("start_date", req.StartDate.Format(time.DateOnly))
	q.Set("end_date", req.EndDate.Format(time.DateOnly))
	q.Set("hourly", strings.Join(req.Variables, ","))
	q.Set("timezone", req.Timezone)
	if c.apiToken != "" {
		q.Set("apikey", c.apiToken)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// String identifies the client in logs without the token.
func (c *OpenMeteoClient) String() string {
	return fmt.Sprintf("OpenMeteoClient(%s)", c.baseURL)
}

var _ Fetcher = (*OpenMeteoClient)(nil)
