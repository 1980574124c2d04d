// Package statusapi exposes the simulator's point-in-time status over HTTP
// for external dashboards. Read-only: every handler is a snapshot call into
// the core.
package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pizzeria-system/internal/pizzeria"
)

type Server struct {
	manager *pizzeria.OrderManager
	ovens   []*pizzeria.Oven
	preps   []*pizzeria.PrepStation
	srv     *http.Server
}

func New(port int, manager *pizzeria.OrderManager, ovens []*pizzeria.Oven, preps []*pizzeria.PrepStation) *Server {
	s := &Server{manager: manager, ovens: ovens, preps: preps}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.getStatus)
	mux.HandleFunc("GET /healthz", s.getHealth)
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Run blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	ovens := make([]pizzeria.OvenStatus, 0, len(s.ovens))
	for _, o := range s.ovens {
		ovens = append(ovens, o.Status())
	}
	preps := make([]pizzeria.PrepStatus, 0, len(s.preps))
	for _, p := range s.preps {
		preps = append(preps, p.Status())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orders":        s.manager.Snapshot(),
		"ovens":         ovens,
		"prep_stations": preps,
	})
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
