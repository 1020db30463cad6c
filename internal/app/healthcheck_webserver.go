package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vk/patchgridgo/internal/session"
)

// healthcheckServer serves liveness and a small status snapshot.
type healthcheckServer struct {
	server *http.Server
}

// healthcheckMux builds the handler tree. The stats callback is invoked
// from the server's goroutines, so it must only read synchronized
// snapshots; the session-owned store is off limits here.
func (a *App) healthcheckMux(stats func() session.Stats) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		s := stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"connected":     s.Connected,
			"nodes":         s.Nodes,
			"ports":         s.Ports,
			"links":         s.Links,
			"active_preset": s.ActivePreset,
		})
	})
	return mux
}

// startHealthcheckServer initializes and runs the health check HTTP server.
func (a *App) startHealthcheckServer(port int, stats func() session.Stats) *healthcheckServer {
	a.logger.Debug("Configuring health check server.")

	mux := a.healthcheckMux(stats)
	addr := fmt.Sprintf(":%d", port)
	hs := &healthcheckServer{server: &http.Server{Addr: addr, Handler: mux}}

	go func() {
		a.logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		// ListenAndServe returns ErrServerClosed on graceful shutdown; only
		// other errors are failures.
		if err := hs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()

	return hs
}

func (a *App) closeHealthcheckServer(hs *healthcheckServer) error {
	if hs == nil {
		a.logger.Debug("Health check server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a.logger.Info("🩺 Shutting down health check server...")
	if err := hs.server.Shutdown(ctx); err != nil {
		a.logger.Error("Health check server shutdown failed", "error", err)
		return err
	}

	a.logger.Debug("Health check server shut down gracefully.")
	return nil
}
