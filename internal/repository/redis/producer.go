package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"

	"ozzus/check-dispatcher/internal/dispatch"
	"ozzus/check-dispatcher/internal/domain"
)

const (
	DefaultPort = 6379

	lowSuffix  = ":low"
	uniqSuffix = ":uniq:"
)

var Driver = dispatch.Driver{
	Name:        "redis",
	DefaultPort: DefaultPort,
	Module:      "github.com/gomodule/redigo",
	MinVersion:  "v1.8.0",
	Dial:        Dial,
}

// LowQueue is the list that holds low priority jobs of queue. Workers pop
// the normal list first.
func LowQueue(queue string) string {
	return queue + lowSuffix
}

// UniqueKey is the marker that collapses duplicate jobs on queue.
func UniqueKey(queue, key string) string {
	return queue + uniqSuffix + key
}

// Producer pushes jobs onto redis lists. It connects on first use to the
// first reachable server.
type Producer struct {
	servers  []string
	timeout  time.Duration
	dedupTTL time.Duration

	mu      sync.Mutex
	conn    redis.Conn
	lastErr string
}

func Dial(opts dispatch.Options) (dispatch.Conn, error) {
	return NewProducer(dispatch.Addrs(opts.Servers), opts.Timeout, opts.DedupTTL), nil
}

func NewProducer(servers []string, timeout, dedupTTL time.Duration) *Producer {
	return &Producer{
		servers:  servers,
		timeout:  timeout,
		dedupTTL: dedupTTL,
	}
}

func (p *Producer) Submit(ctx context.Context, job dispatch.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErr = ""

	err := p.submit(ctx, job)
	if err != nil {
		p.lastErr = err.Error()
		if p.conn != nil {
			p.conn.Close()
			p.conn = nil
		}
	}
	return err
}

// enqueueUnique sets the unique marker and pushes the job in one step, so a
// marker never exists without its job. Returns 0 for a duplicate.
var enqueueUnique = redis.NewScript(2, `
if redis.call("SET", KEYS[1], ARGV[1], "NX", "EX", ARGV[2]) then
	return redis.call("LPUSH", KEYS[2], ARGV[3])
end
return 0
`)

func (p *Producer) submit(ctx context.Context, job dispatch.Job) error {
	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}

	list := job.Queue
	if job.Priority == domain.PriorityLow {
		list = LowQueue(job.Queue)
	}

	if job.UniqueKey == "" || p.dedupTTL <= 0 {
		if _, err := redis.DoContext(conn, ctx, "LPUSH", list, job.Payload); err != nil {
			return fmt.Errorf("failed to push to %s: %w", list, err)
		}
		return nil
	}

	// a zero reply means an equal job is still in flight and this one was
	// collapsed into it
	_, err = redis.Int(enqueueUnique.DoContext(ctx, conn,
		UniqueKey(job.Queue, job.UniqueKey), list,
		job.ID, markerTTL(p.dedupTTL, job.Timeout), job.Payload,
	))
	if err != nil {
		return fmt.Errorf("failed to push to %s: %w", list, err)
	}
	return nil
}

// markerTTL is the unique marker lifetime in seconds: the job's timeout,
// capped by the configured dedup ttl.
func markerTTL(dedupTTL, timeout time.Duration) int {
	ttl := dedupTTL
	if timeout > 0 && timeout < ttl {
		ttl = timeout
	}
	return max(int(ttl/time.Second), 1)
}

func (p *Producer) connect(ctx context.Context) (redis.Conn, error) {
	if p.conn != nil {
		return p.conn, nil
	}

	conn, err := dialAny(ctx, p.servers, p.timeout)
	if err != nil {
		return nil, err
	}
	p.conn = conn
	return conn, nil
}

func dialAny(ctx context.Context, servers []string, timeout time.Duration) (redis.Conn, error) {
	var errs []error
	for _, addr := range servers {
		conn, err := redis.DialContext(ctx, "tcp", addr,
			redis.DialConnectTimeout(timeout),
			redis.DialReadTimeout(timeout),
			redis.DialWriteTimeout(timeout),
		)
		if err == nil {
			return conn, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", addr, err))
	}
	return nil, fmt.Errorf("no reachable redis server: %w", errors.Join(errs...))
}

func (p *Producer) LastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}
