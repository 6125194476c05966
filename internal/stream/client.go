package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BetterCallFirewall/Scanhound/internal/logging"
)

// DefaultBackoff is the reconnect schedule: quick first retries, then a
// steady 5s cadence until the schedule is exhausted.
var DefaultBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	5 * time.Second,
	5 * time.Second,
}

// DefaultStallTimeout is how long a connection may stay silent (no
// heartbeat, no event) before the client treats it as dead.
const DefaultStallTimeout = 30 * time.Second

// errStreamDone signals a clean terminal event, not a failure.
var errStreamDone = errors.New("stream finished")

// ClientConfig configures a stream consumer.
type ClientConfig struct {
	// URL is the websocket endpoint, e.g. "ws://host:8081/ws".
	URL   string
	RunID string

	StallTimeout time.Duration
	Backoff      []time.Duration
	Dialer       *websocket.Dialer
}

// Client consumes one run's event stream. On connection loss or a
// heartbeat stall it reconnects with progressive backoff; a connection
// that delivers new events resets the schedule, so the backoff bounds
// one outage, not the whole subscription. A resumed subscription never
// re-delivers events the consumer already saw: the server replays the
// run history on every connection and the client skips the prefix it
// has forwarded.
type Client struct {
	config ClientConfig
	events chan Event

	// delivered counts forwarded events; on reconnect that many
	// replayed events are skipped.
	delivered int
}

// NewClient creates a consumer for one run subscription.
func NewClient(config ClientConfig) *Client {
	if config.StallTimeout == 0 {
		config.StallTimeout = DefaultStallTimeout
	}
	if config.Backoff == nil {
		config.Backoff = DefaultBackoff
	}
	if config.Dialer == nil {
		config.Dialer = websocket.DefaultDialer
	}
	return &Client{
		config: config,
		events: make(chan Event, 256),
	}
}

// Run connects and consumes until the stream terminates, the context is
// canceled, or every reconnect attempt has been spent. The Events channel closes
// when Run returns.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	attempt := 0
	for {
		progress, err := c.consume(ctx)
		if errors.Is(err, errStreamDone) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if progress {
			// The outage is over; the next one gets the full schedule.
			attempt = 0
		}
		if attempt >= len(c.config.Backoff) {
			return fmt.Errorf("stream client: giving up on run %s after %d reconnect attempts: %w",
				c.config.RunID, attempt, err)
		}

		delay := c.config.Backoff[attempt]
		attempt++
		logging.L().Infow("stream lost, reconnecting",
			"run_id", c.config.RunID,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Events returns the receive channel for decoded events.
func (c *Client) Events() <-chan Event {
	return c.events
}

// consume runs one connection until it dies or the stream terminates.
// progress reports whether the connection delivered anything beyond the
// replayed prefix.
func (c *Client) consume(ctx context.Context) (progress bool, _ error) {
	endpoint := c.config.URL + "?run=" + url.QueryEscape(c.config.RunID)
	conn, resp, err := c.config.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("dialing %s: %w", endpoint, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Unblock the read below if the caller cancels mid-stream.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	received := 0
	for {
		conn.SetReadDeadline(time.Now().Add(c.config.StallTimeout))

		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			return progress, fmt.Errorf("reading event: %w", err)
		}

		received++
		if received <= c.delivered {
			// Replayed history the consumer already has, start included.
			if event.Terminal() {
				return progress, errStreamDone
			}
			continue
		}

		select {
		case c.events <- event:
		case <-ctx.Done():
			return progress, ctx.Err()
		}
		c.delivered++
		progress = true

		if event.Terminal() {
			return progress, errStreamDone
		}
	}
}
