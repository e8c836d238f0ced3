package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gomodule/redigo/redis"

	"ozzus/check-dispatcher/internal/repository"
)

// popTimeout bounds one BRPOP, in seconds.
const popTimeout = 1

// Consumer pops worker results off the result list. A popped result is
// gone from the broker, so Ack is a no-op.
type Consumer struct {
	servers []string
	queue   string
	timeout time.Duration
	log     *slog.Logger

	conn redis.Conn
}

func NewConsumer(servers []string, queue string, timeout time.Duration, log *slog.Logger) *Consumer {
	return &Consumer{
		servers: servers,
		queue:   queue,
		timeout: timeout,
		log:     log,
	}
}

func SourceFactory(servers []string, queue string, timeout time.Duration, log *slog.Logger) repository.ResultSourceFactory {
	return func(workerID int) (repository.ResultSource, error) {
		return NewConsumer(servers, queue, timeout, log.With(slog.Int("worker", workerID))), nil
	}
}

func (c *Consumer) Fetch(ctx context.Context) (repository.Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return repository.Delivery{}, err
		}

		payload, err := c.pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return repository.Delivery{}, ctx.Err()
			}
			return repository.Delivery{}, err
		}
		if payload == nil {
			continue
		}

		c.log.Debug("received message", "queue", c.queue, "value_length", len(payload))

		return repository.Delivery{
			Payload: payload,
			Ack:     func(context.Context) error { return nil },
		}, nil
	}
}

// pop returns nil, nil when the list stayed empty for popTimeout.
func (c *Consumer) pop(ctx context.Context) ([]byte, error) {
	if c.conn == nil {
		conn, err := dialAny(ctx, c.servers, c.timeout)
		if err != nil {
			return nil, err
		}
		c.conn = conn
	}

	conn := c.conn
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	wait := popTimeout*time.Second + c.timeout
	reply, err := redis.ByteSlices(redis.DoWithTimeout(conn, wait, "BRPOP", c.queue, popTimeout))
	if errors.Is(err, redis.ErrNil) {
		return nil, nil
	}
	if err != nil {
		conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("failed to pop from %s: %w", c.queue, err)
	}
	if len(reply) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of %d elements", len(reply))
	}
	return reply[1], nil
}

func (c *Consumer) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
