package domain

import "time"

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

type HealthResponse struct {
	Status    HealthStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	GatewayID string       `json:"gateway_id"`
	Message   string       `json:"message,omitempty"`
}

// ComponentHealth статус здоровья компонента
type ComponentHealth struct {
	Name    string      `json:"name"`
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

type DetailedHealthResponse struct {
	Status     HealthStatus      `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	GatewayID  string            `json:"gateway_id"`
	Components []ComponentHealth `json:"components"`
	Version    string            `json:"version"`
}
