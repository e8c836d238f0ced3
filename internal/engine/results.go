package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ozzus/check-dispatcher/internal/domain"
	"ozzus/check-dispatcher/internal/lib/logger/sl"
)

type ResultStore interface {
	SaveResult(ctx context.Context, result *domain.CheckResult) error
}

// ResultWriter applies collected results back into the engine.
type ResultWriter struct {
	registry *Registry
	store    ResultStore
	log      *slog.Logger
}

func NewResultWriter(registry *Registry, store ResultStore, log *slog.Logger) *ResultWriter {
	return &ResultWriter{
		registry: registry,
		store:    store,
		log:      log.With(slog.String("component", "result_writer")),
	}
}

func (w *ResultWriter) Apply(ctx context.Context, result *domain.CheckResult) error {
	if result == nil || result.HostName == "" {
		return errors.New("result without host name")
	}

	if result.IsHost() {
		if err := w.registry.FinishHostCheck(result.HostName); err != nil {
			// keep the result even if the host is gone from the config
			w.log.Warn("host result for unknown host", slog.String("host", result.HostName), sl.Err(err))
		}
	}

	if err := w.store.SaveResult(ctx, result); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	w.log.Debug("result applied",
		slog.String("host", result.HostName),
		slog.String("service", result.ServiceDescription),
		slog.Int("return_code", result.ReturnCode),
	)
	return nil
}
