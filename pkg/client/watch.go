package client

import (
	"context"
	"net"

	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"

	"github.com/mineq-project/mineq/pkg/events"
)

// Watch streams daemon events to fn until ctx is done, fn returns false or
// the daemon closes the stream. A canceled ctx is not an error.
func (c *Client) Watch(ctx context.Context, fn func(events.Event) bool) error {
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialUnix(ctx, c.socketPath)
		},
	}

	conn, _, err := dialer.DialContext(ctx, "ws://unix/events", nil)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to open event stream")
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		var ev events.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return pkgerrors.Wrap(err, "event stream interrupted")
		}
		if !fn(ev) {
			return nil
		}
	}
}
