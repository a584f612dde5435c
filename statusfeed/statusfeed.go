// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

// Package statusfeed serves the build session's observable state over
// HTTP: step snapshots, the live terminal buffer, the lifecycle phase,
// a WebSocket stream of both, and Prometheus metrics. It is the wire
// surface a UI would sit on.
package statusfeed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forge-foundation/forge/lib/clock"
	"github.com/forge-foundation/forge/lib/step"
	"github.com/forge-foundation/forge/orchestrator"
)

// terminalPollInterval is how often the WebSocket stream checks the
// terminal buffer for new output.
const terminalPollInterval = 200 * time.Millisecond

// StateResponse is the /api/state payload.
type StateResponse struct {
	SessionID  string             `json:"session_id"`
	Phase      orchestrator.Phase `json:"phase"`
	PreviewURL string             `json:"preview_url,omitempty"`
}

// TerminalResponse is the /api/terminal payload. Next is the offset to
// pass on the following request.
type TerminalResponse struct {
	Data string `json:"data"`
	Next uint64 `json:"next"`
}

// Message is one WebSocket frame. Type selects which fields are set:
// "steps" carries Steps, "terminal" carries Data and Next.
type Message struct {
	Type  string      `json:"type"`
	Steps []step.Step `json:"steps,omitempty"`
	Data  string      `json:"data,omitempty"`
	Next  uint64      `json:"next,omitempty"`
}

// Server exposes one orchestrator session.
type Server struct {
	orch     *orchestrator.Orchestrator
	logger   *slog.Logger
	clk      clock.Clock
	upgrader websocket.Upgrader
}

// Options configures a Server. Orchestrator is required.
type Options struct {
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger
	Clock        clock.Clock
}

// New returns a server for the given orchestrator.
func New(options Options) *Server {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Server{
		orch:   options.Orchestrator,
		logger: logger,
		clk:    clk,
		upgrader: websocket.Upgrader{
			// The feed is a local development surface; any origin may
			// read it.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the routing handler for the feed.
func (server *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/steps", server.handleSteps)
	mux.HandleFunc("GET /api/terminal", server.handleTerminal)
	mux.HandleFunc("GET /api/state", server.handleState)
	mux.HandleFunc("GET /ws", server.handleWebSocket)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Run serves the feed on addr until ctx is cancelled.
func (server *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: server.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	server.logger.Info("statusfeed listening", "addr", addr)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (server *Server) handleSteps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, server.orch.Tracker().Snapshot())
}

func (server *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, StateResponse{
		SessionID:  server.orch.SessionID().String(),
		Phase:      server.orch.Phase(),
		PreviewURL: server.orch.PreviewURL(),
	})
}

func (server *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	var offset uint64
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "offset must be a non-negative integer", http.StatusBadRequest)
			return
		}
		offset = parsed
	}

	buffer := server.orch.Terminal()
	writeJSON(w, TerminalResponse{
		Data: string(buffer.ReadFrom(offset)),
		Next: buffer.Offset(),
	})
}

// handleWebSocket streams step snapshots as they change and terminal
// output as it accumulates, each as a JSON Message frame. The initial
// step snapshot is sent immediately so a client never starts blind.
func (server *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.upgrader.Upgrade(w, r, nil)
	if err != nil {
		server.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := server.orch.Tracker().Subscribe()
	defer cancel()

	// Reads are discarded; the goroutine exists to notice the peer
	// going away and unblock the write loop below.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(Message{Type: "steps", Steps: server.orch.Tracker().Snapshot()}); err != nil {
		return
	}

	buffer := server.orch.Terminal()
	offset := uint64(0)
	ticker := server.clk.NewTicker(terminalPollInterval)
	defer ticker.Stop()

	for {
		select {
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(Message{Type: "steps", Steps: snapshot}); err != nil {
				return
			}
		case <-ticker.C:
			chunk := buffer.ReadFrom(offset)
			if len(chunk) == 0 {
				continue
			}
			offset = buffer.Offset()
			if err := conn.WriteJSON(Message{Type: "terminal", Data: string(chunk), Next: offset}); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// The connection is gone; nothing useful to do.
		return
	}
}
