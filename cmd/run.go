package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/snapshot-labs/boost-guard/internal/config"
	"github.com/snapshot-labs/boost-guard/internal/logger"
	"github.com/snapshot-labs/boost-guard/internal/metrics/prometheus"
	"github.com/snapshot-labs/boost-guard/internal/shutdown"
	"github.com/snapshot-labs/boost-guard/internal/version"
	"github.com/snapshot-labs/boost-guard/pkg/rpcServer"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the boost guard api",
	Run: func(cmd *cobra.Command, args []string) {
		initRunCmd(cmd)
		cfg := config.NewConfig()

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug, Name: "boost-guard"})
		defer l.Sync() //nolint:errcheck

		l.Sugar().Infow("Starting boost guard",
			zap.String("version", version.GetVersion()),
			zap.String("commit", version.GetCommit()),
		)

		if err := cfg.Validate(); err != nil {
			l.Sugar().Fatalw("Invalid configuration", zap.Error(err))
		}

		sink, err := newMetricsSink(cfg, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup metrics", zap.Error(err))
		}

		bg, signerAddress, err := newBoostGuard(cfg, sink, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup boost guard", zap.Error(err))
		}

		mux := rpcServer.NewServeMux()
		rpc, err := rpcServer.NewRpcServer(mux, bg, signerAddress, sink, cfg, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup rpc server", zap.Error(err))
		}

		httpServer := rpcServer.NewHttpServer(cfg.HttpConfig.Port, rpc.Handler(mux), l)
		serverErrs := httpServer.Start()

		promChannel := make(chan bool)
		if cfg.PrometheusConfig.Enabled {
			promServer := prometheus.NewPrometheusServer(&prometheus.PrometheusServerConfig{
				Port: cfg.PrometheusConfig.Port,
			}, l)
			if err := promServer.Start(promChannel); err != nil {
				l.Sugar().Fatalw("Failed to start prometheus server", zap.Error(err))
			}
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := <-serverErrs; err != nil {
				cancel()
			}
		}()

		shutdown.ListenForShutdown(ctx, shutdown.CreateGracefulShutdownChannel(), func(shutdownCtx context.Context) {
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				l.Sugar().Errorw("Failed to shutdown http server", zap.Error(err))
			}
			if cfg.PrometheusConfig.Enabled {
				promChannel <- true
			}
			sink.Flush()
		}, time.Second*5, l)
	},
}

func initRunCmd(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		if err := viper.BindPFlag(key, f); err != nil {
			fmt.Printf("Failed to bind flag '%s' - %+v\n", f.Name, err)
		}
		if err := viper.BindEnv(envNames(key, f.Name)...); err != nil {
			fmt.Printf("Failed to bind env '%s' - %+v\n", f.Name, err)
		}
	})
}
