package service

import (
	"context"
	"errors"

	"ozzus/check-dispatcher/internal/dispatch"
	"ozzus/check-dispatcher/internal/domain"
)

var ErrNotActive = errors.New("interception not active")

type dispatchStats interface {
	Stats() dispatch.Stats
}

type hostCounter interface {
	RunningHostChecks() int
	Counts() (hosts, services int)
}

// HealthCheck fails until the engine event loop started.
func (i *Interceptor) HealthCheck(context.Context) error {
	if !i.Active() {
		return ErrNotActive
	}
	return nil
}

func (i *Interceptor) Components() []domain.ComponentHealth {
	active := i.Active()

	subscribed := i.Subscribed()
	names := make([]string, 0, len(subscribed))
	for _, t := range subscribed {
		names = append(names, string(t))
	}

	components := []domain.ComponentHealth{{
		Name:    "interceptor",
		Status:  statusOf(active),
		Details: map[string]any{"callbacks": names},
	}}

	if s, ok := i.submitter.(dispatchStats); ok {
		st := s.Stats()
		status := "ok"
		if st.Dropped > 0 {
			status = "degraded"
		}
		components = append(components, domain.ComponentHealth{
			Name:    "dispatch",
			Status:  status,
			Details: st,
		})
	}

	if i.pool != nil {
		st := i.pool.Stats()
		status := statusOf(active)
		if active && st.Running < st.Workers {
			status = "degraded"
		}
		components = append(components, domain.ComponentHealth{
			Name:    "result_workers",
			Status:  status,
			Details: st,
		})
	}

	if h, ok := i.hosts.(hostCounter); ok {
		hosts, services := h.Counts()
		components = append(components, domain.ComponentHealth{
			Name:   "engine",
			Status: "ok",
			Details: map[string]int{
				"hosts":               hosts,
				"services":            services,
				"running_host_checks": h.RunningHostChecks(),
			},
		})
	}

	return components
}

func statusOf(active bool) string {
	if active {
		return "ok"
	}
	return "waiting"
}
