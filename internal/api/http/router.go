package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"ozzus/check-dispatcher/internal/api/http/middleware"
)

// Auth protects the /v1 routes with basic auth when Token is set.
type Auth struct {
	User  string
	Token string
}

func NewRouter(
	healthController *HealthController,
	checkController *CheckController,
	resultsController *ResultsController,
	auth Auth,
	log *slog.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(), middleware.Logger(log.With(slog.String("component", "http"))))

	router.GET("/health", healthController.Health)
	router.GET("/status", healthController.Status)
	router.GET("/ready", healthController.Ready)
	router.GET("/info", healthController.Info)

	v1 := router.Group("/v1")
	if auth.Token != "" {
		v1.Use(gin.BasicAuth(gin.Accounts{auth.User: auth.Token}))
	}

	v1.POST("/events/process", checkController.ProcessEvent)
	v1.POST("/checks/host", checkController.HostCheck)
	v1.POST("/checks/service", checkController.ServiceCheck)
	v1.POST("/eventhandlers", checkController.EventHandler)

	v1.GET("/results", resultsController.List)
	v1.GET("/results/latest", resultsController.Latest)

	return router
}
