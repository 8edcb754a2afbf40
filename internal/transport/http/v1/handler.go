// Package v1 provides the trace server HTTP handlers.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/gogo/crewtrace/internal/domain"
	"github.com/xiaot623/gogo/crewtrace/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/crews/:crew_id/kickoff", h.Kickoff)

	e.GET("/v1/traces/:trace_id", h.GetTrace)
	e.GET("/v1/traces/:trace_id/events", h.GetTraceEvents)
	e.POST("/v1/traces/:trace_id/events", h.AppendTraceEvents)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyTraceID):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTraceNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
