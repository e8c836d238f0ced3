package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"ozzus/check-dispatcher/internal/domain"
	"ozzus/check-dispatcher/internal/lib/logger/sl"
	"ozzus/check-dispatcher/internal/payload"
	"ozzus/check-dispatcher/internal/repository"
)

const (
	MaxResultWorkers = 256

	defaultRetryPause = time.Second
)

// ResultSink applies a collected result back into the engine.
type ResultSink interface {
	Apply(ctx context.Context, result *domain.CheckResult) error
}

// ResultWorkerPool runs a fixed number of result collectors. Workers are
// started once and never restarted.
type ResultWorkerPool struct {
	size       int
	factory    repository.ResultSourceFactory
	sink       ResultSink
	log        *slog.Logger
	retryPause time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      conc.WaitGroup

	running atomic.Int32
	applied atomic.Int64
	failed  atomic.Int64
}

type PoolOption func(*ResultWorkerPool)

// WithRetryPause sets the pause after a failed fetch.
func WithRetryPause(d time.Duration) PoolOption {
	return func(p *ResultWorkerPool) {
		p.retryPause = d
	}
}

func NewResultWorkerPool(size int, factory repository.ResultSourceFactory, sink ResultSink, log *slog.Logger, opts ...PoolOption) *ResultWorkerPool {
	p := &ResultWorkerPool{
		size:       clampWorkers(size),
		factory:    factory,
		sink:       sink,
		log:        log.With(slog.String("component", "result_workers")),
		retryPause: defaultRetryPause,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func clampWorkers(n int) int {
	switch {
	case n < 1:
		return 1
	case n > MaxResultWorkers:
		return MaxResultWorkers
	}
	return n
}

func (p *ResultWorkerPool) Size() int {
	return p.size
}

// Start spawns the workers. Only the first call has an effect.
func (p *ResultWorkerPool) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return false
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for id := 1; id <= p.size; id++ {
		p.wg.Go(func() {
			p.run(ctx, id)
		})
	}

	p.log.Info("result workers started", slog.Int("workers", p.size))
	return true
}

// Stop cancels every worker and waits until all of them returned.
func (p *ResultWorkerPool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	if r := p.wg.WaitAndRecover(); r != nil {
		p.log.Error("result worker panicked", sl.Err(r.AsError()))
	}
	p.log.Info("result workers stopped",
		slog.Int64("applied", p.applied.Load()),
		slog.Int64("failed", p.failed.Load()),
	)
}

type PoolStats struct {
	Workers int   `json:"workers"`
	Running int   `json:"running"`
	Applied int64 `json:"applied"`
	Failed  int64 `json:"failed"`
}

func (p *ResultWorkerPool) Stats() PoolStats {
	return PoolStats{
		Workers: p.size,
		Running: int(p.running.Load()),
		Applied: p.applied.Load(),
		Failed:  p.failed.Load(),
	}
}

func (p *ResultWorkerPool) run(ctx context.Context, id int) {
	p.running.Add(1)
	defer p.running.Add(-1)

	log := p.log.With(slog.Int("worker", id))
	log.Debug("result worker started")

	var src repository.ResultSource
	defer func() {
		if src != nil {
			if err := src.Close(); err != nil {
				log.Debug("closing result source failed", sl.Err(err))
			}
		}
		log.Debug("result worker stopped")
	}()

	for ctx.Err() == nil {
		if src == nil {
			s, err := p.factory(id)
			if err != nil {
				log.Error("could not open result source", sl.Err(err))
				if !p.pause(ctx) {
					return
				}
				continue
			}
			src = s
		}

		d, err := src.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("fetching result failed", sl.Err(err))
			if !p.pause(ctx) {
				return
			}
			continue
		}

		p.handle(ctx, log, d)
	}
}

func (p *ResultWorkerPool) handle(ctx context.Context, log *slog.Logger, d repository.Delivery) {
	result, err := payload.ParseResult(d.Payload)
	if err != nil {
		p.failed.Add(1)
		log.Error("discarding malformed result", sl.Err(err), slog.Int("bytes", len(d.Payload)))
	} else if err := p.sink.Apply(ctx, result); err != nil {
		p.failed.Add(1)
		log.Error("could not apply result",
			slog.String("host", result.HostName),
			slog.String("service", result.ServiceDescription),
			sl.Err(err),
		)
	} else {
		p.applied.Add(1)
	}

	if d.Ack == nil {
		return
	}
	if err := d.Ack(ctx); err != nil {
		log.Warn("could not ack result", sl.Err(err))
	}
}

// pause reports false when ctx ended first.
func (p *ResultWorkerPool) pause(ctx context.Context) bool {
	t := time.NewTimer(p.retryPause)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
