package prometheus

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/marmos91/tftpfs/internal/logger"
	"github.com/marmos91/tftpfs/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the /metrics HTTP handler for the shared registry,
// or nil when metrics are disabled.
func Handler() http.Handler {
	reg := metrics.GetRegistry()
	if reg == nil {
		return nil
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Server exposes the metrics endpoint over HTTP.
type Server struct {
	httpServer *http.Server
}

// StartServer serves /metrics on addr (e.g. ":9090") in the
// background. Returns an error when metrics are disabled.
func StartServer(addr string) (*Server, error) {
	handler := Handler()
	if handler == nil {
		return nil, fmt.Errorf("metrics are not enabled")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "addr", addr, "error", err.Error())
		}
	}()

	logger.Info("metrics server started", "addr", addr)
	return &Server{httpServer: srv}, nil
}

// Shutdown stops the metrics server, waiting for in-flight scrapes.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
