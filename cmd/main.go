// o008 registry API server
//
// Serves the registry REST API. Every HTTP request is turned into a command,
// published on the request bus and answered by a persistent request poller.
//
// Usage:
//
//	go run ./cmd                        # listens on 0.0.0.0:3000
//	O008_API_PORT=8080 go run ./cmd     # custom port
//	go run ./cmd -env-file prod.env     # extra .env file
//
// Configuration is read from O008_* environment variables; see
// coreengine/config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/o008/registry/coreengine/action"
	"github.com/o008/registry/coreengine/api"
	"github.com/o008/registry/coreengine/config"
	"github.com/o008/registry/coreengine/dispatcher"
	"github.com/o008/registry/coreengine/observability"
	"github.com/o008/registry/coreengine/runtime"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	envFile := flag.String("env-file", ".env", "optional .env file")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "o008-api: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	logger.Info("o008_api_starting", "version", version, "config", cfg.ToMap())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.Tracing.Tracer(version))
	switch {
	case errors.Is(err, observability.ErrNoEndpoint):
		logger.Info("tracing_disabled")
	case err != nil:
		return err
	default:
		defer flushTracer(logger, shutdownTracer)
	}

	st, err := cfg.OpenStore(ctx, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("store_opened", "backend", cfg.Store)

	d := dispatcher.New(action.NewService(st, logger),
		dispatcher.NewTracingMiddleware(nil),
		dispatcher.NewLoggingMiddleware(logger),
		dispatcher.NewMetricsMiddleware(),
	)
	runner := runtime.NewCommandRunner(d, cfg.Bus.Runtime(), logger)
	defer runner.Close()
	stopCleanup := runner.StartCleanupLoop(cfg.Bus.Cleanup())
	defer stopCleanup()

	server := api.NewGracefulServer(api.NewHandler(runner, st, logger), cfg.API.Addr(), cfg.API.Server(), logger)
	// Pending requests resolve as "no response" before connections drain.
	server.BeforeShutdown(runner.Terminate)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := runner.Serve(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return server.Start(gctx)
	})

	err = g.Wait()
	logger.Info("o008_api_stopped")
	return err
}

func flushTracer(logger *slog.Logger, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("tracer_shutdown_failed", "error", err.Error())
	}
}
