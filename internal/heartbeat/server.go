// Package heartbeat runs the liveness endpoint worker pods probe. Any GET on
// / gets an empty 200; pods that stop seeing 2xx responses shut themselves
// down, so a crashed scheduler does not leave orphaned pods behind.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/catalystcommunity/app-utils-go/errorutils"
	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/driftdata/driftsync/internal/metrics"
)

// DefaultPort is the port the sidecars are built to probe
const DefaultPort = 9000

// Server answers heartbeat probes and exposes scheduler metrics
type Server struct {
	httpServer *http.Server
}

// NewServer creates a heartbeat server listening on the given port
func NewServer(port int) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		metrics.HeartbeatRequests.Inc()
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", metrics.Handler())

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// Start serves until the listener is closed
func (s *Server) Start() error {
	logging.Log.WithField("addr", s.httpServer.Addr).Info("Starting heartbeat server")
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		errorutils.LogOnErr(nil, "heartbeat server exited with: ", err)
		return err
	}
	return nil
}

// StartBackground serves on a goroutine and returns immediately
func (s *Server) StartBackground() {
	go func() {
		_ = s.Start()
	}()
}

// Stop shuts the server down, waiting for in-flight requests
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
