package rpcServer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/cors"
	"github.com/snapshot-labs/boost-guard/internal/config"
	"github.com/snapshot-labs/boost-guard/internal/metrics"
	"github.com/snapshot-labs/boost-guard/pkg/guard"
	"go.uber.org/zap"
)

const (
	Route_CreateVouchers = "/create-vouchers"
	Route_GetRewards     = "/get-rewards"
	Route_Health         = "/health"
	Route_Ready          = "/ready"
)

const maxRequestBodyBytes = 1 << 20

type RpcServer struct {
	Logger        *zap.Logger
	guard         *guard.BoostGuard
	signerAddress string
	metricsSink   *metrics.MetricsSink
	globalConfig  *config.Config
}

// NewRpcServer registers the guard routes on mux. signerAddress is reported by the readiness
// check and may be empty when only estimates are served.
func NewRpcServer(
	mux *runtime.ServeMux,
	bg *guard.BoostGuard,
	signerAddress string,
	ms *metrics.MetricsSink,
	cfg *config.Config,
	l *zap.Logger,
) (*RpcServer, error) {
	if ms == nil {
		ms = metrics.NewNoopMetricsSink()
	}
	server := &RpcServer{
		Logger:        l,
		guard:         bg,
		signerAddress: signerAddress,
		metricsSink:   ms,
		globalConfig:  cfg,
	}

	routes := []struct {
		method  string
		path    string
		handler runtime.HandlerFunc
	}{
		{http.MethodPost, Route_CreateVouchers, server.CreateVouchers},
		{http.MethodPost, Route_GetRewards, server.GetRewards},
		{http.MethodGet, Route_Health, server.HealthCheck},
		{http.MethodGet, Route_Ready, server.ReadyCheck},
	}
	for _, route := range routes {
		if err := mux.HandlePath(route.method, route.path, route.handler); err != nil {
			l.Sugar().Errorw("Failed to register route", zap.String("path", route.path), zap.Error(err))
			return nil, err
		}
	}
	return server, nil
}

func NewServeMux() *runtime.ServeMux {
	return runtime.NewServeMux()
}

// Handler wraps mux with CORS, request ids, request logging, metrics and the request timeout.
func (rpc *RpcServer) Handler(mux http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: rpc.globalConfig.HttpConfig.CorsAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(rpc.withRequestContext(mux))
}

type HttpServer struct {
	logger     *zap.Logger
	httpServer *http.Server
}

func NewHttpServer(port int, handler http.Handler, l *zap.Logger) *HttpServer {
	return &HttpServer{
		logger: l,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in the background. Listen failures are reported on the returned channel.
func (hs *HttpServer) Start() <-chan error {
	errs := make(chan error, 1)
	go func() {
		hs.logger.Sugar().Infow("Starting http server", zap.String("addr", hs.httpServer.Addr))
		if err := hs.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			hs.logger.Sugar().Errorw("Http server failed", zap.Error(err))
			errs <- err
		}
		close(errs)
	}()
	return errs
}

// Shutdown stops accepting connections and waits for in-flight requests until ctx is done.
func (hs *HttpServer) Shutdown(ctx context.Context) error {
	hs.logger.Sugar().Info("Shutting down http server")
	return hs.httpServer.Shutdown(ctx)
}
