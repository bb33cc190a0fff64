package playout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/omkarlalla-code/kiosk-project/internal/control"
)

// Reconnect backoff bounds for the control channel.
const (
	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
)

// Client maintains the websocket control channel from the server's room hub
// and feeds decoded messages to the scheduler. It reconnects with
// exponential backoff until its context is cancelled.
type Client struct {
	url   string
	sched *Scheduler

	// OnStatus, when set, is notified of connectivity transitions so the
	// host UI can signal reconnection.
	OnStatus func(connected bool)
}

// NewClient creates a Client reading the room datachannel at url.
func NewClient(url string, sched *Scheduler) *Client {
	return &Client{url: url, sched: sched}
}

// errStreamEnded reports a clean end_of_stream shutdown of the channel.
var errStreamEnded = errors.New("stream ended")

// Run connects and processes messages until ctx is cancelled or the server
// signals end_of_stream. Transient connection loss is retried; decode
// failures skip the message.
func (c *Client) Run(ctx context.Context) error {
	backoff := reconnectMin
	for {
		err := c.readOnce(ctx)
		if errors.Is(err, errStreamEnded) {
			c.setStatus(false)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.setStatus(false)
		slog.Warn("playout: control channel lost, reconnecting",
			"url", c.url, "backoff", backoff, "err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, reconnectMax)
	}
}

// readOnce runs one dial-and-read cycle until the connection drops.
func (c *Client) readOnce(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	c.setStatus(true)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		msg, err := control.Decode(data)
		if err != nil {
			slog.Warn("playout: undecodable control message skipped", "err", err)
			continue
		}
		c.sched.HandleMessage(ctx, msg)
		if msg.Type == control.TypeEndOfStream {
			return errStreamEnded
		}
	}
}

func (c *Client) setStatus(connected bool) {
	if c.OnStatus != nil {
		c.OnStatus(connected)
	}
}
