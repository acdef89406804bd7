package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	loggingpkg "github.com/drblury/replybus/internal/runtime/logging"
	"github.com/drblury/replybus/internal/runtime/stats"
)

const httpShutdownTimeout = 5 * time.Second

type httpServers struct {
	mu      sync.Mutex
	muxes   map[int]*http.ServeMux
	running []*http.Server
}

// RegisterHTTPHandler mounts handler on pattern of the HTTP server listening on
// port. Servers start with the bus and stop when it closes.
func (b *Bus) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	if b.http == nil {
		b.http = &httpServers{}
	}
	b.http.mu.Lock()
	defer b.http.mu.Unlock()

	if b.http.muxes == nil {
		b.http.muxes = make(map[int]*http.ServeMux)
	}
	mux, ok := b.http.muxes[port]
	if !ok {
		mux = http.NewServeMux()
		b.http.muxes[port] = mux
	}
	mux.Handle(pattern, handler)
}

func (b *Bus) startHTTPServers() {
	if b.http == nil {
		return
	}
	b.http.mu.Lock()
	defer b.http.mu.Unlock()

	if len(b.http.running) > 0 {
		return
	}
	for port, mux := range b.http.muxes {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		b.http.running = append(b.http.running, srv)
		b.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				b.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}(srv)
	}
}

func (b *Bus) stopHTTPServers() error {
	if b.http == nil {
		return nil
	}
	b.http.mu.Lock()
	servers := b.http.running
	b.http.running = nil
	b.http.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()

	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
		}
	}
	return errors.Join(errs...)
}

// registerMetrics exposes the bus counters on the registerer and, when a
// metrics port is configured, serves them on /metrics.
func (b *Bus) registerMetrics() error {
	collector := stats.NewCollector(metricsNamespace, b.Conf.ServiceName, b.Stats)
	if err := b.registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return fmt.Errorf("register metrics: %w", err)
		}
		b.Logger.Info("Bus metrics already registered, keeping the existing collector", loggingpkg.LogFields{
			"service": b.Conf.ServiceName,
		})
	} else {
		b.collector = collector
	}

	if b.Conf.MetricsPort <= 0 {
		return nil
	}
	handler := promhttp.Handler()
	if gatherer, ok := b.registerer.(prometheus.Gatherer); ok {
		handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	b.RegisterHTTPHandler(b.Conf.MetricsPort, "/metrics", handler)
	return nil
}
