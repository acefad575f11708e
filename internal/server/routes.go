package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/hallway-labs/hallway/internal/gateway"
)

// Options configures the HTTP surface.
type Options struct {
	// AllowedOrigin restricts websocket upgrades. "*" allows any origin.
	AllowedOrigin string
}

// NewRouter wires the routes: websocket entry, health check, and a
// read-only stats endpoint served through the hub's own loop.
func NewRouter(hub *gateway.Hub, opts Options) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/stats", statsHandler(hub)).Methods(http.MethodGet)
	r.HandleFunc("/ws", ServeWs(hub, opts))
	return r
}

// Health check endpoint.
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Presence server is healthy."))
}

func statsHandler(hub *gateway.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		stats, err := hub.Snapshot(ctx)
		if err != nil {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}

func newUpgrader(opts Options) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB

		CheckOrigin: func(r *http.Request) bool {
			if opts.AllowedOrigin == "" || opts.AllowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == opts.AllowedOrigin
		},
	}
}

// ServeWs returns an http.HandlerFunc that handles websocket requests.
// It takes the hub as a dependency.
func ServeWs(hub *gateway.Hub, opts Options) http.HandlerFunc {
	upgrader := newUpgrader(opts)
	return func(w http.ResponseWriter, r *http.Request) {
		// Upgrade the HTTP connection to a WebSocket
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("failed to upgrade connection", "error", err)
			return
		}

		// Create a new client with a server-assigned connection id
		client := &gateway.Client{
			Hub:  hub,
			Conn: conn,
			ID:   uuid.NewString(),
			Send: make(chan *gateway.Message, 256),
		}

		// Register the client with the hub
		client.Hub.Register <- client

		// Start the client's read and write pumps in separate goroutines
		// These methods will handle the client's lifecycle
		go client.WritePump()
		go client.ReadPump()
	}
}
