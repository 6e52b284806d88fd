package rpcServer

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/snapshot-labs/boost-guard/internal/metrics/metricsTypes"
	"go.uber.org/zap"
)

const RequestIdHeader = "X-Request-Id"

type requestIdKey struct{}

func RequestIdFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIdKey{}).(string); ok {
		return id
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// metricPath keeps the path label bounded to the registered routes.
func metricPath(path string) string {
	switch path {
	case Route_CreateVouchers, Route_GetRewards, Route_Health, Route_Ready:
		return path
	}
	return "other"
}

func (rpc *RpcServer) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestId := r.Header.Get(RequestIdHeader)
		if _, err := uuid.Parse(requestId); err != nil {
			requestId = uuid.New().String()
		}
		w.Header().Set(RequestIdHeader, requestId)

		ctx := context.WithValue(r.Context(), requestIdKey{}, requestId)
		if timeout := rpc.globalConfig.HttpConfig.RequestTimeout; timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		duration := time.Since(start)
		path := metricPath(r.URL.Path)
		_ = rpc.metricsSink.Incr(metricsTypes.Metric_Incr_HttpRequest, []metricsTypes.MetricsLabel{
			{Name: "path", Value: path},
			{Name: "status", Value: strconv.Itoa(recorder.status)},
		}, 1)
		_ = rpc.metricsSink.Timing(metricsTypes.Metric_Timing_HttpDuration, duration, []metricsTypes.MetricsLabel{
			{Name: "path", Value: path},
		})

		rpc.Logger.Sugar().Infow("Handled request",
			zap.String("requestId", requestId),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.status),
			zap.Duration("duration", duration),
		)
	})
}
