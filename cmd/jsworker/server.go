package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/jsworker/jsworker/internal/logger"
	"github.com/jsworker/jsworker/pkg/scriptpool"
)

// statsServer is the optional, read-only stats/health surface this driver
// may expose over the pool's own introspection API. It is furniture around
// the core, not part of it, and never accepts script payloads over the
// network (spec.md §1 Non-goals).
type statsServer struct {
	http     *http.Server
	pool     *scriptpool.Pool
	log      logger.Logger
	upgrader websocket.Upgrader
}

func newStatsServer(addr string, p *scriptpool.Pool, log logger.Logger) *statsServer {
	s := &statsServer{
		pool:     p,
		log:      log,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/stats/stream", s.handleStatsStream).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

func (s *statsServer) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("stats server error", "error", err)
		}
	}()
}

func (s *statsServer) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *statsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "service": serviceName})
}

func (s *statsServer) handleStats(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(s.pool.Stats())
}

// handleStatsStream pushes a stats snapshot over a WebSocket every second
// until the client disconnects — purely illustrative; it never reads
// client messages.
func (s *statsServer) handleStatsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(s.pool.Stats()); err != nil {
			return
		}
	}
}
