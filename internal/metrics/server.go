package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes /metrics (Prometheus exposition) and /healthz (a trivial
// liveness check) on one HTTP listener.
type Server struct {
	httpSrv *http.Server
}

// NewServer builds a metrics/health HTTP server against reg. The returned
// server does not listen until Run is called.
func NewServer(reg *prometheus.Registry, healthy func() bool) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if healthy != nil && !healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unhealthy"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{httpSrv: &http.Server{Handler: mux}}
}

// Run listens on addr and serves until ctx is cancelled, at which point it
// shuts down within shutdownTimeout. An empty addr disables the listener
// entirely; Run then just blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer listener.Close()

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.httpSrv.Shutdown(sctx)
	}()

	err = s.httpSrv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
