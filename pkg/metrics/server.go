// HTTP server for the Prometheus metrics endpoint
//
// Copyright (C) 2026  Go Port Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"net/http"
	"time"
)

// Server serves a registry at /metrics for Prometheus scraping.
type Server struct {
	registry *Registry
	server   *http.Server
}

// NewServer creates a scrape server for the registry.
func NewServer(registry *Registry, addr string) *Server {
	s := &Server{registry: registry}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown; it blocks, so run it on its own goroutine.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.Write([]byte(s.registry.Render()))
}
