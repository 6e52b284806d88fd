// Package graphql is a minimal GraphQL-over-HTTP client shared by the hub and subgraph clients.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/snapshot-labs/boost-guard/internal/metrics"
	"github.com/snapshot-labs/boost-guard/internal/metrics/metricsTypes"
	"github.com/snapshot-labs/boost-guard/pkg/rejection"
	"go.uber.org/zap"
)

var (
	// ErrUpstreamUnavailable is returned once every retry has failed.
	ErrUpstreamUnavailable = rejection.ErrUpstreamUnavailable
	// ErrMalformedResponse is returned when the body is not a GraphQL response.
	ErrMalformedResponse = rejection.ErrMalformedResponse
)

var defaultBackoffSchedule = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
}

type Request struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type Error struct {
	Message string        `json:"message"`
	Path    []interface{} `json:"path,omitempty"`
}

type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors []Error         `json:"errors,omitempty"`
}

// ResponseErrors are errors reported by the GraphQL server itself. They are never retried.
type ResponseErrors []Error

func (re ResponseErrors) Error() string {
	messages := make([]string, 0, len(re))
	for _, e := range re {
		messages = append(messages, e.Message)
	}
	return fmt.Sprintf("graphql errors: %s", strings.Join(messages, "; "))
}

type statusError struct {
	statusCode int
}

func (se *statusError) Error() string {
	return fmt.Sprintf("received http error code %d", se.statusCode)
}

// retryable reports whether a failed attempt may succeed when repeated.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.statusCode == http.StatusTooManyRequests || se.statusCode >= 500
	}
	var re ResponseErrors
	if errors.As(err, &re) {
		return false
	}
	return !errors.Is(err, ErrMalformedResponse)
}

type ClientConfig struct {
	Url string
	// Source names the upstream in logs and metrics
	Source string
	// Timeout of a single attempt
	Timeout time.Duration
	// MaxRetries bounds the number of attempts after the first one
	MaxRetries int
	// BackoffSchedule overrides the default delays between attempts
	BackoffSchedule []time.Duration
}

type Client struct {
	Logger       *zap.Logger
	httpClient   *http.Client
	metricsSink  *metrics.MetricsSink
	clientConfig *ClientConfig
}

func NewClient(cfg *ClientConfig, hc *http.Client, ms *metrics.MetricsSink, l *zap.Logger) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	if ms == nil {
		ms = metrics.NewNoopMetricsSink()
	}
	l.Sugar().Infow("Creating new GraphQL client",
		zap.String("source", cfg.Source),
		zap.String("url", cfg.Url),
	)
	return &Client{
		Logger:       l,
		httpClient:   hc,
		metricsSink:  ms,
		clientConfig: cfg,
	}
}

func (c *Client) Url() string {
	return c.clientConfig.Url
}

func (c *Client) backoffSchedule() []time.Duration {
	schedule := c.clientConfig.BackoffSchedule
	if schedule == nil {
		schedule = defaultBackoffSchedule
	}
	retries := c.clientConfig.MaxRetries
	if retries < 0 {
		retries = 0
	}
	if retries < len(schedule) {
		schedule = schedule[:retries]
	}
	return schedule
}

func (c *Client) do(ctx context.Context, request *Request) (*Response, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	if c.clientConfig.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.clientConfig.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.clientConfig.Url, bytes.NewReader(requestBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to make request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.httpClient.Do(req)
	status := "error"
	if res != nil {
		status = strconv.Itoa(res.StatusCode)
	}
	c.recordRequest(status, time.Since(start))
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer res.Body.Close()

	responseBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read body")
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &statusError{statusCode: res.StatusCode}
	}

	destination := &Response{}
	if err := json.Unmarshal(responseBody, destination); err != nil {
		return nil, errors.Wrapf(ErrMalformedResponse, "failed to unmarshal response: %s", err)
	}
	if len(destination.Errors) > 0 {
		return nil, ResponseErrors(destination.Errors)
	}
	return destination, nil
}

func (c *Client) recordRequest(status string, duration time.Duration) {
	source := metricsTypes.MetricsLabel{Name: "source", Value: c.clientConfig.Source}
	_ = c.metricsSink.Incr(metricsTypes.Metric_Incr_UpstreamRequest, []metricsTypes.MetricsLabel{
		source,
		{Name: "status", Value: status},
	}, 1)
	_ = c.metricsSink.Timing(metricsTypes.Metric_Timing_UpstreamDuration, duration, []metricsTypes.MetricsLabel{source})
}

// Do sends the request, retrying transport failures, 429 and 5xx responses with backoff.
// Waiting between attempts is aborted when ctx is done.
func (c *Client) Do(ctx context.Context, request *Request) (*Response, error) {
	backoffs := c.backoffSchedule()
	var lastErr error
	for attempt := 0; ; attempt++ {
		res, err := c.do(ctx, request)
		if err == nil {
			if attempt > 0 {
				c.Logger.Sugar().Infow("Successfully queried after backoff",
					zap.String("source", c.clientConfig.Source),
					zap.Int("attempt", attempt),
				)
			}
			return res, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), err.Error())
		}
		if attempt >= len(backoffs) {
			break
		}
		backoff := backoffs[attempt]
		c.Logger.Sugar().Warnw("Failed to query, retrying",
			zap.Error(err),
			zap.String("source", c.clientConfig.Source),
			zap.Duration("backoff", backoff),
		)
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), err.Error())
		case <-time.After(backoff):
		}
	}
	c.Logger.Sugar().Errorw("Exceeded retries for query",
		zap.Error(lastErr),
		zap.String("source", c.clientConfig.Source),
	)
	return nil, errors.Wrapf(ErrUpstreamUnavailable, "%s: %s", c.clientConfig.Source, lastErr)
}

// Query runs query with variables and decodes the data object into destination.
func (c *Client) Query(ctx context.Context, query string, variables map[string]interface{}, destination interface{}) error {
	res, err := c.Do(ctx, &Request{Query: query, Variables: variables})
	if err != nil {
		return err
	}
	if len(res.Data) == 0 || string(res.Data) == "null" {
		return errors.Wrap(ErrMalformedResponse, "response has no data")
	}
	if err := json.Unmarshal(res.Data, destination); err != nil {
		return errors.Wrapf(ErrMalformedResponse, "failed to decode data: %s", err)
	}
	return nil
}
