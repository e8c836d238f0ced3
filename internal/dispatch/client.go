// Package dispatch submits check jobs to the broker.
//
// The Client owns exactly one connection handle. A failed submit drops that
// handle, dials a fresh one from the same options and retries once. When the
// retry fails too the job is dropped and the handle is recreated again, so
// the next call starts clean. There is no queueing and no backoff.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"ozzus/check-dispatcher/internal/lib/logger/sl"
)

var ErrSubmitFailed = errors.New("submit failed")

// Driver describes a broker client implementation.
type Driver struct {
	Name        string
	DefaultPort int
	// Module and MinVersion gate startup on the linked client library.
	Module     string
	MinVersion string
	Dial       Dialer
}

type Client struct {
	dial Dialer
	opts Options
	log  *slog.Logger

	mu         sync.Mutex
	conn       Conn
	reconnects int
	submitted  int
	dropped    int
}

// New creates the client and its first handle. A handle that cannot be
// created is fatal here, unlike during reconnects.
func New(dial Dialer, opts Options, log *slog.Logger) (*Client, error) {
	if len(opts.Servers) == 0 {
		return nil, ErrNoServers
	}

	conn, err := dial(opts)
	if err != nil {
		return nil, fmt.Errorf("could not create broker client: %w", err)
	}

	log = log.With(slog.String("component", "dispatch"))
	for _, s := range opts.Servers {
		log.Debug("client added broker server", slog.String("server", s.Addr()))
	}

	return &Client{
		dial: dial,
		opts: opts,
		log:  log,
		conn: conn,
	}, nil
}

// Submit enqueues a background job and blocks until the broker accepted it.
func (c *Client) Submit(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.log.With(
		slog.String("job_id", job.ID),
		slog.String("queue", job.Queue),
		slog.String("priority", job.Priority.String()),
	)

	err := c.submit(ctx, job)
	if err == nil {
		c.submitted++
		log.Debug("job submitted", slog.Int("bytes", len(job.Payload)))
		return nil
	}

	log.Error("client error", sl.Err(err))
	c.reconnect()

	// try to resubmit once
	err = c.submit(ctx, job)
	if err == nil {
		c.submitted++
		log.Debug("retransmission successful")
		return nil
	}

	log.Error("client error permanent, job dropped", sl.Err(err))
	c.reconnect()
	c.dropped++

	return fmt.Errorf("%w: queue %s: %w", ErrSubmitFailed, job.Queue, err)
}

func (c *Client) submit(ctx context.Context, job Job) error {
	err := c.conn.Submit(ctx, job)
	msg := c.conn.LastError()
	switch {
	case msg == "":
		return err
	case err == nil:
		return errors.New(msg)
	case strings.Contains(err.Error(), msg):
		return err
	default:
		return fmt.Errorf("%w (%s)", err, msg)
	}
}

// reconnect replaces the handle. Callers hold c.mu.
func (c *Client) reconnect() {
	c.reconnects++

	if err := c.conn.Close(); err != nil {
		c.log.Debug("closing broker handle failed", sl.Err(err))
	}

	conn, err := c.dial(c.opts)
	if err != nil {
		c.log.Error("could not recreate broker client", sl.Err(err))
		c.conn = brokenConn{err: fmt.Errorf("broker client unavailable: %w", err)}
		return
	}
	c.conn = conn
	c.log.Debug("broker client recreated", slog.Int("reconnects", c.reconnects))
}

type Stats struct {
	Submitted  int `json:"submitted"`
	Dropped    int `json:"dropped"`
	Reconnects int `json:"reconnects"`
}

func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Submitted:  c.submitted,
		Dropped:    c.dropped,
		Reconnects: c.reconnects,
	}
}

func (c *Client) Reconnects() int {
	return c.Stats().Reconnects
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
