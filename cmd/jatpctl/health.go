package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/jatpclient/cache"
	"github.com/jonwraymond/jatpclient/config"
	"github.com/jonwraymond/jatpclient/health"
	"github.com/jonwraymond/jatpclient/observe"
)

func newHealthCmd(a *app) *cobra.Command {
	var (
		listen  string
		slow    time.Duration
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the auth service, the circuit breaker and the key cache",
		Long: `Run every health check once and print the report. The exit status is
2 when the overall status is unhealthy.

With --listen the checks are served over HTTP instead:
/healthz (liveness), /readyz (readiness) and /health (full report).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			s, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			agg, err := buildAggregator(s, health.ServiceCheckerConfig{SlowThreshold: slow}, timeout)
			if err != nil {
				return err
			}

			if listen != "" {
				return a.serveHealth(ctx, s, agg, listen)
			}

			report := agg.CheckAll(ctx)
			if err := a.printJSON(health.NewReportResponse(report)); err != nil {
				return err
			}
			if report.Status == health.StatusUnhealthy {
				return errUnhealthy
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&listen, "listen", "", "serve health endpoints on this address, e.g. :8081")
	f.DurationVar(&slow, "slow", 0, "report degraded when the service answers slower than this")
	f.DurationVar(&timeout, "timeout", 10*time.Second, "bound for each check")
	return cmd
}

func buildAggregator(s *session, svc health.ServiceCheckerConfig, timeout time.Duration) (*health.Aggregator, error) {
	agg := health.NewAggregator(health.AggregatorConfig{Timeout: timeout})

	checkers := []health.Checker{
		health.NewServiceChecker(s.client, svc),
		health.NewCircuitChecker("", s.client.Executor().CircuitBreaker()),
	}
	if s.rdb != nil {
		checkers = append(checkers, health.NewRedisChecker("", s.rdb))
	}
	for _, c := range checkers {
		if err := agg.Register(c); err != nil {
			return nil, err
		}
	}
	return agg, nil
}

func (a *app) serveHealth(ctx context.Context, s *session, agg *health.Aggregator, addr string) error {
	logger := a.obs.Logger()

	if interval := config.Seconds(a.cfg.KeyCache.CleanupInterval); interval > 0 {
		j := cache.NewJanitor(s.store, interval)
		j.OnCleanup = func(removed int, err error) {
			if err != nil {
				logger.Warn(ctx, "key cache cleanup failed", observe.Field{Key: "error", Value: err.Error()})
				return
			}
			if removed > 0 {
				logger.Debug(ctx, "key cache cleanup", observe.Field{Key: "removed", Value: removed})
			}
		}
		j.Start(ctx)
		defer j.Stop()
	}

	mux := http.NewServeMux()
	health.RegisterHandlers(mux, agg)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info(ctx, "serving health endpoints", observe.Field{Key: "addr", Value: ln.Addr().String()})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
