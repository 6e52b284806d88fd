package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func CreateGracefulShutdownChannel() chan os.Signal {
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGTERM, syscall.SIGINT)

	return gracefulShutdown
}

// ListenForShutdown blocks until a termination signal arrives or ctx is done, then runs
// signalHandler with a context bounded by timeToWait.
func ListenForShutdown(
	ctx context.Context,
	signalChan chan os.Signal,
	signalHandler func(ctx context.Context),
	timeToWait time.Duration,
	l *zap.Logger,
) {
	select {
	case sig := <-signalChan:
		l.Sugar().Infow("Caught signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		l.Sugar().Infow("Context done, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeToWait)
	defer cancel()

	l.Sugar().Infow("Draining before exit", zap.Duration("timeout", timeToWait))
	signalHandler(shutdownCtx)

	l.Sugar().Infow("Exiting")
}
