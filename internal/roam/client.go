// Package roam is a small websocket client for the presence server, used by
// roamctl to drive simulated peers against a running instance.
package roam

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hallway-labs/hallway/internal/gateway"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
)

// Client manages one websocket connection to the presence server.
type Client struct {
	conn      *websocket.Conn
	serverURL string

	// Incoming delivers every server event until the connection closes.
	Incoming chan *gateway.Message

	outgoing chan *gateway.Message
	done     chan struct{}

	closeOnce sync.Once
}

// NewClient creates a client for the given ws:// or wss:// URL.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		Incoming:  make(chan *gateway.Message, 64),
		outgoing:  make(chan *gateway.Message, 64),
		done:      make(chan struct{}),
	}
}

// Connect establishes the websocket connection and starts the pumps.
func (c *Client) Connect() error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// Send queues an event for the server. Returns an error once closed.
func (c *Client) Send(eventType string, payload any) error {
	msg := gateway.NewMessage(eventType, payload)
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return fmt.Errorf("connection closed")
	}
}

// Close tears the connection down.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) readPump() {
	defer func() {
		c.Close()
		close(c.Incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg gateway.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		select {
		case c.Incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
