package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"icc.tech/pcap-bridge/internal/log"
)

// Server serves the /metrics scrape endpoint.
type Server struct {
	srv *http.Server
}

// NewServer builds a metrics server listening on addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{srv: &http.Server{Addr: addr, Handler: mux}}
}

// Start serves in the background until Stop.
func (s *Server) Start() {
	go func() {
		log.GetLogger().WithField("addr", s.srv.Addr).Info("metrics server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.GetLogger().WithError(err).Error("metrics server stopped")
		}
	}()
}

// Stop shuts the server down, waiting briefly for in-flight scrapes.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		log.GetLogger().WithError(err).Warn("metrics server shutdown")
	}
}
