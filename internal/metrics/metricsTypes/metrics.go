package metricsTypes

import "time"

type IMetricsClient interface {
	Incr(name string, labels []MetricsLabel, value float64) error
	Gauge(name string, value float64, labels []MetricsLabel) error
	Timing(name string, value time.Duration, labels []MetricsLabel) error
}

type MetricsLabel struct {
	Name  string
	Value string
}

type MetricsType string

var (
	MetricsType_Incr   MetricsType = "incr"
	MetricsType_Gauge  MetricsType = "gauge"
	MetricsType_Timing MetricsType = "timing"
)

type MetricsTypeConfig struct {
	Name   string
	Labels []string
}

var (
	Metric_Incr_VoucherIssued   = "guard.vouchers.issued"
	Metric_Incr_RewardEstimated = "guard.rewards.estimated"
	Metric_Incr_BoostRejected   = "guard.boosts.rejected"
	Metric_Incr_RequestFailed   = "guard.requests.failed"
	Metric_Incr_UpstreamRequest = "upstream.request"
	Metric_Incr_HttpRequest     = "rpc.http.request"

	Metric_Gauge_ConfiguredChains = "guard.chains.configured"

	Metric_Timing_UpstreamDuration = "upstream.duration"
	Metric_Timing_HttpDuration     = "rpc.http.duration"
	Metric_Timing_PipelineDuration = "guard.pipeline.duration"
)

// Prometheus requires every observation to carry exactly the declared label set.
var MetricTypes = map[MetricsType][]MetricsTypeConfig{
	MetricsType_Incr: {
		MetricsTypeConfig{
			Name:   Metric_Incr_VoucherIssued,
			Labels: []string{"chainId"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_RewardEstimated,
			Labels: []string{"chainId"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_BoostRejected,
			Labels: []string{"kind", "reason"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_RequestFailed,
			Labels: []string{"kind"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_UpstreamRequest,
			Labels: []string{"source", "status"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_HttpRequest,
			Labels: []string{"path", "status"},
		},
	},
	MetricsType_Gauge: {
		MetricsTypeConfig{
			Name:   Metric_Gauge_ConfiguredChains,
			Labels: []string{},
		},
	},
	MetricsType_Timing: {
		MetricsTypeConfig{
			Name:   Metric_Timing_UpstreamDuration,
			Labels: []string{"source"},
		},
		MetricsTypeConfig{
			Name:   Metric_Timing_HttpDuration,
			Labels: []string{"path"},
		},
		MetricsTypeConfig{
			Name:   Metric_Timing_PipelineDuration,
			Labels: []string{"mode"},
		},
	},
}
