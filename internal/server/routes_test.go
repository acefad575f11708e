package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/hallway-labs/hallway/internal/gateway"
	"github.com/hallway-labs/hallway/internal/server"
)

func startServer(t *testing.T, opts server.Options) (*httptest.Server, *gateway.Hub) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := gateway.NewHub(log, gateway.Position{X: 10, Y: 20})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(server.NewRouter(hub, opts))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, hub
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func readEvent(t *testing.T, conn *websocket.Conn) *gateway.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg gateway.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

func TestHealthEndpoint(t *testing.T) {
	req := require.New(t)
	srv, _ := startServer(t, server.Options{AllowedOrigin: "*"})

	resp, err := http.Get(srv.URL + "/health")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)
}

func TestWebsocketPresenceFlow(t *testing.T) {
	req := require.New(t)
	srv, _ := startServer(t, server.Options{AllowedOrigin: "*"})

	c1, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	req.NoError(err)
	defer c1.Close()

	c2, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	req.NoError(err)
	defer c2.Close()

	// The earlier connection hears the later one arrive at spawn.
	msg := readEvent(t, c1)
	req.Equal(gateway.EventPlayerJoined, msg.Type)
	var arrival gateway.PlayerState
	req.NoError(json.Unmarshal(msg.Payload, &arrival))
	req.Equal(10.0, arrival.X)
	req.Equal(20.0, arrival.Y)

	// The later one pulls its snapshot once ready.
	req.NoError(c2.WriteJSON(gateway.NewMessage(gateway.EventReady, nil)))
	msg = readEvent(t, c2)
	req.Equal(gateway.EventCurrentPlayers, msg.Type)
	var players []gateway.PlayerState
	req.NoError(json.Unmarshal(msg.Payload, &players))
	req.Len(players, 1)

	// Movement fans out to the other connection.
	req.NoError(c2.WriteJSON(gateway.NewMessage(gateway.EventPlayerMove, gateway.PlayerMovePayload{X: 50, Y: 60})))
	msg = readEvent(t, c1)
	req.Equal(gateway.EventPlayerMoved, msg.Type)
}

func TestStatsEndpoint(t *testing.T) {
	req := require.New(t)
	srv, _ := startServer(t, server.Options{AllowedOrigin: "*"})

	c1, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	req.NoError(err)
	defer c1.Close()

	// The ready round-trip guarantees the registration was processed.
	req.NoError(c1.WriteJSON(gateway.NewMessage(gateway.EventReady, nil)))
	readEvent(t, c1)

	resp, err := http.Get(srv.URL + "/v1/stats")
	req.NoError(err)
	defer resp.Body.Close()

	var stats gateway.Stats
	req.NoError(json.NewDecoder(resp.Body).Decode(&stats))
	req.Equal(1, stats.Peers)
}

func TestOriginRejected(t *testing.T) {
	req := require.New(t)
	srv, _ := startServer(t, server.Options{AllowedOrigin: "https://hallway.example"})

	header := http.Header{"Origin": {"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	req.Error(err)
	req.Equal(http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": {"https://hallway.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	req.NoError(err)
	conn.Close()
}
