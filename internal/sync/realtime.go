package sync

import (
	"context"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/studypact/backend/internal/logger"
	"go.uber.org/zap"
)

// Reconnect backoff bounds for the websocket subscription
const (
	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
)

// WebSocketRealtime subscribes to the server's push channel and surfaces
// change events. It reconnects with exponential backoff until the context
// is cancelled.
type WebSocketRealtime struct {
	url   string
	token string
}

// NewWebSocketRealtime creates a Realtime source. url is the ws endpoint,
// e.g. wss://host/api/v1/ws.
func NewWebSocketRealtime(url, token string) *WebSocketRealtime {
	return &WebSocketRealtime{url: url, token: token}
}

// Subscribe connects and dispatches change events until ctx is done. Ping,
// pong, and system frames are consumed silently; anything carrying a table
// coordinate is forwarded.
func (w *WebSocketRealtime) Subscribe(ctx context.Context, onEvent func(ChangeEvent)) error {
	backoff := reconnectMin

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := w.run(ctx, onEvent)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logger.Log.Warn("realtime connection lost, reconnecting",
				zap.Duration("backoff", backoff),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

func (w *WebSocketRealtime) run(ctx context.Context, onEvent func(ChangeEvent)) error {
	url := w.url
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	conn, _, err := websocket.Dial(ctx, url+sep+"token="+w.token, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")

	for {
		var frame struct {
			Type    string      `json:"type"`
			Payload ChangeEvent `json:"payload"`
		}
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return err
		}

		switch frame.Type {
		case "system", "ping", "pong", "auth", "error":
			continue
		}

		event := frame.Payload
		event.Type = frame.Type
		onEvent(event)
	}
}
