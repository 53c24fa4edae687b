package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// Watch follows a dashboard's /ws/status feed and calls fn for every
// status update until ctx is cancelled or the connection drops.
func Watch(ctx context.Context, url string, fn func(Status)) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("watch: dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("watch: dial failed: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage on cancellation.
	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("watch: read: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}

		var st Status
		if err := sonic.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("watch: decode status: %w", err)
		}
		fn(st)
	}
}
