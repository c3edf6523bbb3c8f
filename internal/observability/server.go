package observability

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes the default Prometheus registry for the worker
// binaries, which have no API server to mount /metrics on.
type MetricsServer struct {
	srv    *http.Server
	logger *log.Logger
}

// NewMetricsServer builds a server for addr serving /metrics and /healthz.
func NewMetricsServer(addr string, logger *log.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return &MetricsServer{
		srv:    &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		logger: logger,
	}
}

// Handler returns the mux, mostly for tests.
func (m *MetricsServer) Handler() http.Handler {
	return m.srv.Handler
}

// Start serves in a background goroutine. Listen errors are logged.
func (m *MetricsServer) Start() {
	go func() {
		m.logger.Printf("metrics listening on %s", m.srv.Addr)
		if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Printf("metrics server: %v", err)
		}
	}()
}

// Shutdown stops the server, waiting at most timeout for open requests.
func (m *MetricsServer) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := m.srv.Shutdown(ctx); err != nil {
		m.logger.Printf("metrics server shutdown: %v", err)
	}
}
