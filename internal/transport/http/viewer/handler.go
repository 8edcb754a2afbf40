// Package viewer provides the HTTP handlers driving the playback session.
package viewer

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/gogo/crewtrace/internal/domain"
	"github.com/xiaot623/gogo/crewtrace/internal/session"
)

// Kickoffer starts crew runs on the trace server.
type Kickoffer interface {
	Kickoff(ctx context.Context, crewID string, inputs map[string]string) (string, error)
}

// ResultLister reads the run history.
type ResultLister interface {
	ListResults(ctx context.Context, limit int) ([]domain.Result, error)
}

// Handler handles viewer HTTP requests.
type Handler struct {
	// base outlives requests; poll loops are bound to it.
	base    context.Context
	session *session.Session
	crews   Kickoffer
	results ResultLister
}

// NewHandler creates a new handler.
func NewHandler(base context.Context, sess *session.Session, crews Kickoffer, results ResultLister) *Handler {
	return &Handler{
		base:    base,
		session: sess,
		crews:   crews,
		results: results,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/session/kickoff", h.Kickoff)
	e.POST("/v1/session/start", h.Start)
	e.POST("/v1/session/stop", h.Stop)
	e.POST("/v1/session/reset", h.Reset)
	e.PUT("/v1/session/topology", h.SetTopology)

	e.POST("/v1/session/cursor", h.MoveCursor)
	e.POST("/v1/session/follow", h.Follow)
	e.GET("/v1/session/frame", h.GetFrame)
	e.GET("/v1/session/events", h.GetEvents)
	e.GET("/v1/session/poller", h.GetPoller)
	e.GET("/v1/session/results", h.ListResults)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// Kickoff starts a crew and follows its trace.
// POST /v1/session/kickoff
func (h *Handler) Kickoff(c echo.Context) error {
	var req domain.SessionKickoffRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.CrewID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "crew_id is required"})
	}

	traceID, err := h.crews.Kickoff(c.Request().Context(), req.CrewID, req.Inputs)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	if err := h.session.Start(h.base, traceID, req.Topology); err != nil {
		return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, h.session.Frame())
}

// Start follows an existing trace.
// POST /v1/session/start
func (h *Handler) Start(c echo.Context) error {
	var req domain.SessionStartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := h.session.Start(h.base, req.TraceID, req.Topology); err != nil {
		return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, h.session.Frame())
}

// Stop cancels polling and discards the trace.
// POST /v1/session/stop
func (h *Handler) Stop(c echo.Context) error {
	h.session.Stop()
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// Reset stops the session and forgets the topology.
// POST /v1/session/reset
func (h *Handler) Reset(c echo.Context) error {
	h.session.Reset()
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// SetTopology replaces the static graph.
// PUT /v1/session/topology
func (h *Handler) SetTopology(c echo.Context) error {
	var topology domain.StaticTopology
	if err := c.Bind(&topology); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	h.session.SetTopology(topology)
	return c.JSON(http.StatusOK, h.session.Frame())
}

// MoveCursor scrubs to an event index.
// POST /v1/session/cursor
func (h *Handler) MoveCursor(c echo.Context) error {
	var req domain.CursorRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	frame, err := h.session.Scrub(req.Index)
	if err != nil {
		return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, frame)
}

// Follow resumes tracking the newest event.
// POST /v1/session/follow
func (h *Handler) Follow(c echo.Context) error {
	frame, err := h.session.Follow()
	if err != nil {
		return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, frame)
}

// GetFrame returns the frame at the cursor, or at ?index= without moving it.
// GET /v1/session/frame
func (h *Handler) GetFrame(c echo.Context) error {
	raw := c.QueryParam("index")
	if raw == "" {
		return c.JSON(http.StatusOK, h.session.Frame())
	}
	index, err := strconv.Atoi(raw)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid index"})
	}
	frame, err := h.session.FrameAt(index)
	if err != nil {
		return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, frame)
}

// GetEvents returns the merged event log.
// GET /v1/session/events
func (h *Handler) GetEvents(c echo.Context) error {
	return c.JSON(http.StatusOK, domain.PollResponse{Events: h.session.Events()})
}

// GetPoller returns the poll loop state.
// GET /v1/session/poller
func (h *Handler) GetPoller(c echo.Context) error {
	return c.JSON(http.StatusOK, h.session.PollerSnapshot())
}

// ListResults returns finalized runs, newest first.
// GET /v1/session/results
func (h *Handler) ListResults(c echo.Context) error {
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	results, err := h.results.ListResults(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyTraceID):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoActiveTrace):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
