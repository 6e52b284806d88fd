package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/snapshot-labs/boost-guard/internal/config"
	"github.com/snapshot-labs/boost-guard/internal/logger"
	"github.com/snapshot-labs/boost-guard/internal/metrics/metricsTypes"
	"github.com/stretchr/testify/assert"
)

type recordedMetric struct {
	kind   string
	name   string
	value  float64
	labels []metricsTypes.MetricsLabel
}

type recordingClient struct {
	metrics []recordedMetric
	err     error
	flushes int
}

func (c *recordingClient) Flush() {
	c.flushes++
}

func (c *recordingClient) Incr(name string, labels []metricsTypes.MetricsLabel, value float64) error {
	c.metrics = append(c.metrics, recordedMetric{kind: "incr", name: name, value: value, labels: labels})
	return c.err
}

func (c *recordingClient) Gauge(name string, value float64, labels []metricsTypes.MetricsLabel) error {
	c.metrics = append(c.metrics, recordedMetric{kind: "gauge", name: name, value: value, labels: labels})
	return c.err
}

func (c *recordingClient) Timing(name string, value time.Duration, labels []metricsTypes.MetricsLabel) error {
	c.metrics = append(c.metrics, recordedMetric{kind: "timing", name: name, value: float64(value.Milliseconds()), labels: labels})
	return c.err
}

func Test_MetricsSink(t *testing.T) {
	t.Run("Should fan out to every client with default labels", func(t *testing.T) {
		a := &recordingClient{}
		b := &recordingClient{}
		sink, err := NewMetricsSink(&MetricsSinkConfig{
			DefaultLabels: []metricsTypes.MetricsLabel{{Name: "env", Value: "test"}},
		}, []metricsTypes.IMetricsClient{a, b})
		assert.Nil(t, err)

		err = sink.Incr(metricsTypes.Metric_Incr_VoucherIssued, []metricsTypes.MetricsLabel{{Name: "chainId", Value: "1"}}, 1)
		assert.Nil(t, err)

		for _, c := range []*recordingClient{a, b} {
			assert.Len(t, c.metrics, 1)
			assert.Equal(t, "incr", c.metrics[0].kind)
			assert.Equal(t, []metricsTypes.MetricsLabel{{Name: "env", Value: "test"}, {Name: "chainId", Value: "1"}}, c.metrics[0].labels)
		}
	})
	t.Run("Should use default labels when none are given", func(t *testing.T) {
		c := &recordingClient{}
		defaults := []metricsTypes.MetricsLabel{{Name: "env", Value: "test"}}
		sink, _ := NewMetricsSink(&MetricsSinkConfig{DefaultLabels: defaults}, []metricsTypes.IMetricsClient{c})

		assert.Nil(t, sink.Gauge(metricsTypes.Metric_Gauge_ConfiguredChains, 2, nil))
		assert.Nil(t, sink.Timing(metricsTypes.Metric_Timing_PipelineDuration, 15*time.Millisecond, nil))

		assert.Len(t, c.metrics, 2)
		assert.Equal(t, defaults, c.metrics[0].labels)
		assert.Equal(t, float64(15), c.metrics[1].value)
	})
	t.Run("Should return client errors", func(t *testing.T) {
		c := &recordingClient{err: errors.New("boom")}
		sink, _ := NewMetricsSink(&MetricsSinkConfig{}, []metricsTypes.IMetricsClient{c})

		assert.NotNil(t, sink.Incr(metricsTypes.Metric_Incr_RequestFailed, nil, 1))
	})
	t.Run("Should accept metrics without clients", func(t *testing.T) {
		sink := NewNoopMetricsSink()
		assert.Nil(t, sink.Incr(metricsTypes.Metric_Incr_HttpRequest, nil, 1))
	})
	t.Run("Should flush clients that buffer", func(t *testing.T) {
		c := &recordingClient{}
		sink, _ := NewMetricsSink(&MetricsSinkConfig{}, []metricsTypes.IMetricsClient{c})

		sink.Flush()
		assert.Equal(t, 1, c.flushes)
	})
	t.Run("Should build no clients when none are enabled", func(t *testing.T) {
		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
		clients, err := InitMetricsSinksFromConfig(&config.Config{}, l)
		assert.Nil(t, err)
		assert.Len(t, clients, 0)
	})
}
