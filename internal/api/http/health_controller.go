package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ozzus/check-dispatcher/internal/domain"
)

type StatusProvider interface {
	HealthCheck(ctx context.Context) error
	Components() []domain.ComponentHealth
}

type HealthController struct {
	status    StatusProvider
	gatewayID string
	version   string
	driver    string
}

func NewHealthController(status StatusProvider, gatewayID, version, driver string) *HealthController {
	return &HealthController{
		status:    status,
		gatewayID: gatewayID,
		version:   version,
		driver:    driver,
	}
}

// Health reports whether the process is up. It does not depend on the
// engine having started.
func (h *HealthController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, domain.HealthResponse{
		Status:    domain.HealthStatusHealthy,
		Timestamp: time.Now(),
		GatewayID: h.gatewayID,
		Message:   "Gateway is running",
	})
}

// Ready is 200 once checks are being intercepted.
func (h *HealthController) Ready(c *gin.Context) {
	if err := h.status.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"gateway":   h.gatewayID,
			"message":   err.Error(),
			"timestamp": time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"gateway":   h.gatewayID,
		"message":   "Gateway is intercepting checks",
		"timestamp": time.Now(),
	})
}

func (h *HealthController) Status(c *gin.Context) {
	status := domain.HealthStatusHealthy
	if err := h.status.HealthCheck(c.Request.Context()); err != nil {
		status = domain.HealthStatusUnhealthy
	}

	c.JSON(http.StatusOK, domain.DetailedHealthResponse{
		Status:     status,
		Timestamp:  time.Now(),
		GatewayID:  h.gatewayID,
		Components: h.status.Components(),
		Version:    h.version,
	})
}

func (h *HealthController) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"gateway_id": h.gatewayID,
		"version":    h.version,
		"driver":     h.driver,
		"timestamp":  time.Now(),
		"components": []string{
			"interceptor",
			"dispatch",
			"result_workers",
			"engine",
			"result_store",
		},
	})
}
