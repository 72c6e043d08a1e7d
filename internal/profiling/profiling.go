package profiling

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	Endpoint          = "localhost:9091"
	ReadHeaderTimeout = 2 * time.Second
	ShutdownTimeout   = 5 * time.Second
)

// Handler serves the pprof endpoints, and the run metrics on /metrics when gatherer is set.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

// Enable the profiling endpoint, it is shut down once ctx is done.
func Enable(ctx context.Context, gatherer prometheus.Gatherer, logger *logrus.Entry) {
	server := &http.Server{
		Addr:              Endpoint,
		Handler:           Handler(gatherer),
		ReadHeaderTimeout: ReadHeaderTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Failed to start profiling server")
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		// nolint:contextcheck // ctx is already done here
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.WithField("endpoint", Endpoint+"/debug/pprof").Info("profiling enabled")
}
