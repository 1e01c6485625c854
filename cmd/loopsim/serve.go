package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/gen2brain/aloop"
)

// run calls fn and, when a metrics address is configured, serves the devices' metrics until fn
// returns.
func (a *app) run(ctx context.Context, devices []*aloop.Device, fn func(ctx context.Context) error) error {
	if a.cfg.Metrics == "" {
		return fn(ctx)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		aloop.NewCollector(devices...),
		collectors.NewGoCollector(),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              a.cfg.Metrics,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Str("addr", srv.Addr).Msg("[metrics] listen")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()

		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		defer cancel()

		return fn(gctx)
	})

	return g.Wait()
}
