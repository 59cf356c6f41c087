// Package server hosts the HTTP surface: the Green API webhook endpoint,
// a health probe and prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akhmetov/weighbot/core/buildinfo"
	"github.com/akhmetov/weighbot/core/logger"
)

// Options configures the HTTP server.
type Options struct {
	Addr string
	// Webhook handles Green API notifications; nil disables the route.
	Webhook http.HandlerFunc
}

// Server is the process HTTP listener.
type Server struct {
	http *http.Server
}

// New builds the router and server.
func New(opts Options) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	if opts.Webhook != nil {
		r.Post("/webhook", opts.Webhook)
	}

	return &Server{
		http: &http.Server{
			Addr:              opts.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.HTTP.Info("listening",
			slog.String("event", "http.listen"),
			slog.String("addr", s.http.Addr),
		)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
	})
}
