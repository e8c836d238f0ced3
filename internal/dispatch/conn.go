package dispatch

import (
	"context"
	"time"

	"ozzus/check-dispatcher/internal/domain"
)

// Job is one background submission.
type Job struct {
	ID        string
	Queue     string
	UniqueKey string
	Priority  domain.Priority
	Payload   []byte
	// Timeout is the check timeout. Brokers that expire unique keys keep
	// them no longer than this.
	Timeout time.Duration
}

// Conn is a broker connection handle. Submit must return once the broker has
// accepted the job; it does not wait for the job to run.
type Conn interface {
	Submit(ctx context.Context, job Job) error
	// LastError is the handle's error string. A non-empty value after a
	// submit means the submit failed, whatever Submit returned.
	LastError() string
	Close() error
}

type Options struct {
	Servers []Server
	Timeout time.Duration
	// DedupTTL bounds how long a unique key collapses duplicates on brokers
	// that need an explicit expiry. Jobs with a shorter Timeout use that.
	DedupTTL time.Duration
}

// Dialer creates a fresh handle from the same options every time.
type Dialer func(opts Options) (Conn, error)

// brokenConn stands in for a handle that could not be created.
type brokenConn struct {
	err error
}

func (c brokenConn) Submit(context.Context, Job) error { return c.err }
func (c brokenConn) LastError() string                 { return c.err.Error() }
func (c brokenConn) Close() error                      { return nil }
