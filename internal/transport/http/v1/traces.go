package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/gogo/crewtrace/internal/domain"
)

// Kickoff starts a crew run.
// POST /v1/crews/:crew_id/kickoff
func (h *Handler) Kickoff(c echo.Context) error {
	ctx := c.Request().Context()
	crewID := c.Param("crew_id")
	if crewID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "crew_id is required"})
	}

	var req domain.KickoffRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
	}

	resp, err := h.service.Kickoff(ctx, crewID, req)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

// GetTrace returns a trace record.
// GET /v1/traces/:trace_id
func (h *Handler) GetTrace(c echo.Context) error {
	trace, err := h.service.GetTrace(c.Request().Context(), c.Param("trace_id"))
	if err != nil {
		return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, trace)
}

// GetTraceEvents returns events of a trace stored after after_seq.
// GET /v1/traces/:trace_id/events
func (h *Handler) GetTraceEvents(c echo.Context) error {
	traceID := c.Param("trace_id")
	limit := 0
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	afterSeq := int64(0)
	if v := c.QueryParam("after_seq"); v != "" {
		val, err := strconv.ParseInt(v, 10, 64)
		if err != nil || val < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid after_seq"})
		}
		afterSeq = val
	}

	resp, err := h.service.GetEvents(c.Request().Context(), traceID, afterSeq, limit)
	if err != nil {
		return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

// AppendTraceEvents records events reported by the crew runtime.
// POST /v1/traces/:trace_id/events
func (h *Handler) AppendTraceEvents(c echo.Context) error {
	var req domain.AppendEventsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(req.Events) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "events are required"})
	}

	resp, err := h.service.AppendEvents(c.Request().Context(), c.Param("trace_id"), req.Events)
	if err != nil {
		return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}
