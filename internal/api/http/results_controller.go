package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ozzus/check-dispatcher/internal/domain"
	"ozzus/check-dispatcher/internal/repository"
)

const maxListLimit = 1000

type ResultReader interface {
	ListResults(ctx context.Context, filter repository.ResultFilter) ([]domain.CheckResult, error)
	LatestResult(ctx context.Context, host, service string) (*domain.CheckResult, error)
}

type ResultsController struct {
	results ResultReader
}

func NewResultsController(results ResultReader) *ResultsController {
	return &ResultsController{results: results}
}

func (h *ResultsController) List(c *gin.Context) {
	filter := repository.ResultFilter{
		HostName:           c.Query("host_name"),
		ServiceDescription: c.Query("service_description"),
	}

	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive number")
			return
		}
		filter.Limit = min(n, maxListLimit)
	}

	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			badRequest(c, "since must be an RFC 3339 time")
			return
		}
		filter.Since = &t
	}

	results, err := h.results.ListResults(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if results == nil {
		results = []domain.CheckResult{}
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *ResultsController) Latest(c *gin.Context) {
	host := c.Query("host_name")
	if host == "" {
		badRequest(c, "host_name is required")
		return
	}

	result, err := h.results.LatestResult(c.Request.Context(), host, c.Query("service_description"))
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no result"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}
