package repository

import (
	"context"
	"errors"
	"time"

	"ozzus/check-dispatcher/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Delivery is one result payload taken from the results queue.
type Delivery struct {
	Payload []byte
	Ack     func(ctx context.Context) error
}

// ResultSource reads completed job results. Fetch blocks until a result is
// available or ctx is done.
type ResultSource interface {
	Fetch(ctx context.Context) (Delivery, error)
	Close() error
}

// ResultSourceFactory opens one source per result worker.
type ResultSourceFactory func(workerID int) (ResultSource, error)

type ResultFilter struct {
	HostName           string
	ServiceDescription string
	Since              *time.Time
	Limit              int
}

type ResultRepository interface {
	SaveResult(ctx context.Context, result *domain.CheckResult) error
	ListResults(ctx context.Context, filter ResultFilter) ([]domain.CheckResult, error)
	LatestResult(ctx context.Context, host, service string) (*domain.CheckResult, error)
	Close() error
}
