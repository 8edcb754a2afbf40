// Package http assembles the echo servers of the trace server and the viewer.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/xiaot623/gogo/crewtrace/internal/service"
	v1 "github.com/xiaot623/gogo/crewtrace/internal/transport/http/v1"
	"github.com/xiaot623/gogo/crewtrace/internal/transport/http/viewer"
)

// NewTraceServer creates the trace server that crews report to and viewers poll.
func NewTraceServer(svc *service.Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	v1.NewHandler(svc).RegisterRoutes(e)

	return e
}

// NewViewerServer creates the viewer API. The websocket route is registered by the caller.
func NewViewerServer(h *viewer.Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h.RegisterRoutes(e)

	return e
}
