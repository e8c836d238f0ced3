package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ozzus/check-dispatcher/internal/domain"
	"ozzus/check-dispatcher/internal/engine"
)

type Emitter interface {
	Emit(ctx context.Context, t engine.CallbackType, data any) engine.Verdict
}

// CheckController turns posted engine events into callback emissions.
type CheckController struct {
	hooks Emitter
}

func NewCheckController(hooks Emitter) *CheckController {
	return &CheckController{hooks: hooks}
}

func (h *CheckController) ProcessEvent(c *gin.Context) {
	var ev engine.ProcessEvent
	if !bind(c, &ev) {
		return
	}
	switch ev.Type {
	case engine.ProcessEventLoopStart, engine.ProcessShutdown:
	default:
		badRequest(c, "unknown process event type")
		return
	}

	h.respond(c, engine.CallbackProcess, &ev)
}

func (h *CheckController) HostCheck(c *gin.Context) {
	var ev engine.HostCheckEvent
	if !bind(c, &ev) {
		return
	}
	if ev.HostName == "" {
		badRequest(c, "host_name is required")
		return
	}
	if ev.Type == "" {
		ev.Type = engine.HostCheckAsyncPrecheck
	}

	h.respond(c, engine.CallbackHostCheck, &ev)
}

func (h *CheckController) ServiceCheck(c *gin.Context) {
	var ev engine.ServiceCheckEvent
	if !bind(c, &ev) {
		return
	}
	if ev.HostName == "" || ev.ServiceDescription == "" {
		badRequest(c, "host_name and service_description are required")
		return
	}
	if ev.Type == "" {
		ev.Type = engine.ServiceCheckInitiate
	}

	h.respond(c, engine.CallbackServiceCheck, &ev)
}

func (h *CheckController) EventHandler(c *gin.Context) {
	var ev engine.EventHandlerEvent
	if !bind(c, &ev) {
		return
	}
	if ev.Type == "" {
		ev.Type = engine.EventHandlerStart
	}

	h.respond(c, engine.CallbackEventHandler, &ev)
}

func (h *CheckController) respond(c *gin.Context, t engine.CallbackType, data any) {
	v := h.hooks.Emit(c.Request.Context(), t, data)
	c.JSON(http.StatusOK, domain.InterceptResponse{
		Verdict:  v.String(),
		Override: v == engine.Override,
	})
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, err.Error())
		return false
	}
	return true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
