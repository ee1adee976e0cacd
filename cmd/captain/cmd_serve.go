package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aicaptain/internal/api"
	"aicaptain/internal/orchestrator"
	"aicaptain/internal/telemetry"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listenAddr != "" {
			cfg.ListenAddr = listenAddr
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides listen_addr)")
}

func serve(ctx context.Context) error {
	shutdownTracer := telemetry.Shutdown(telemetry.Noop)
	if cfg.Tracing {
		var err error
		if shutdownTracer, err = telemetry.InitTracer("captain", os.Stdout); err != nil {
			logger.Warn("tracing disabled", zap.Error(err))
			shutdownTracer = telemetry.Noop
		}
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	pool := orchestrator.NewPool(d.client, d.loader,
		orchestrator.WithEvents(d.bus),
		orchestrator.WithHistory(d.history),
		orchestrator.WithLogger(logger.Named("orchestrator")))
	srv := &api.Server{
		Pool:     pool,
		Upstream: d.client,
		Creds:    d.creds,
		History:  d.history,
		Broker:   d.bus,
		Log:      logger.Named("http"),
		Opts: api.Options{
			AllowOrigins: cfg.AllowOrigins,
			RateRPS:      cfg.RateRPS,
			RateBurst:    cfg.RateBurst,
			Debug: map[string]any{
				"listen_addr":         cfg.ListenAddr,
				"api_base_url":        cfg.APIBaseURL,
				"request_timeout":     cfg.RequestTimeout.String(),
				"credentials_backend": cfg.Credentials.Backend,
				"events_backend":      cfg.EventsBackend,
				"has_database_url":    cfg.DatabaseURL != "",
				"has_redis_url":       cfg.RedisURL != "",
				"rate_rps":            cfg.RateRPS,
				"rate_burst":          cfg.RateBurst,
				"tracing":             cfg.Tracing,
			},
		},
	}

	httpSrv := newHTTPServer(cfg.ListenAddr, srv.Handler())
	errc := make(chan error, 1)
	go func() {
		logger.Info("dashboard listening", zap.String("addr", cfg.ListenAddr), zap.String("api", cfg.APIBaseURL))
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdown(shutdownCtx, httpSrv, pool, logger)
	logger.Info("dashboard stopped")
	return nil
}

// newHTTPServer returns a server whose request contexts end when Shutdown
// starts, so event streams return instead of holding their connections.
func newHTTPServer(addr string, h http.Handler) *http.Server {
	base, cancel := context.WithCancel(context.Background())
	s := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	s.RegisterOnShutdown(cancel)
	return s
}

// shutdown stops accepting requests, then waits for optimizations still
// running in the background so their results reach history before the
// stores close.
func shutdown(ctx context.Context, httpSrv *http.Server, pool *orchestrator.Pool, log *zap.Logger) {
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn("dashboard shutdown", zap.Error(err))
	}
	if err := pool.Wait(ctx); err != nil {
		log.Warn("pending optimizations abandoned at shutdown", zap.Error(err))
	}
}
