package anylist

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

const (
	pushPath         = "/data/add-user-listener"
	heartbeatPayload = "--heartbeat--"
	refreshMessage   = "refresh-shopping-lists"
	pushPingInterval = 5 * time.Second
)

// RunPushListener maintains the WebSocket connection that AnyList uses to
// announce account changes. A refresh-shopping-lists message flips the
// snapshot-invalidation signal; nothing else is shared with the sync loop.
// The listener is a hint channel only: sync correctness never depends on it.
// Reconnects use exponential backoff and the method blocks until ctx is
// canceled.
func (c *Client) RunPushListener(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // keep trying; only ctx stops us

	for {
		connected, err := c.listenOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			bo.Reset()
		}

		wait := bo.NextBackOff()
		c.log.Warn("Push listener disconnected, reconnecting", "error", err, "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// listenOnce dials the push endpoint and pumps messages until the
// connection drops. It reports whether the dial succeeded so the caller can
// reset its backoff.
func (c *Client) listenOnce(ctx context.Context) (bool, error) {
	header := http.Header{}
	c.mu.Lock()
	header.Set("Authorization", "Bearer "+c.accessToken)
	header.Set(clientIDHeader, c.clientID)
	c.mu.Unlock()
	header.Set(apiVersionHeader, apiVersion)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.pushURL(), header)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("dialing push endpoint: %w (status %d)", err, resp.StatusCode)
		}
		return false, fmt.Errorf("dialing push endpoint: %w", err)
	}
	defer func() { _ = conn.Close() }()
	c.log.Info("Push listener connected")

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	go pingLoop(ctx, conn, done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("reading push message: %w", err)
		}
		switch string(message) {
		case heartbeatPayload:
			// ignore
		case refreshMessage:
			c.log.Debug("Push: shopping lists changed, invalidating snapshot")
			c.Invalidate()
		default:
			c.log.Debug("Push: ignoring message", "message", string(message))
		}
	}
}

func pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pushPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(pushPingInterval)
			if err := conn.WriteControl(websocket.PingMessage, []byte(heartbeatPayload), deadline); err != nil {
				return
			}
		}
	}
}

func (c *Client) pushURL() string {
	u := c.baseURL + pushPath
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
