package server

import (
	"github.com/labstack/echo/v4"

	"github.com/nfrund/scriptops/internal/middleware"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	h := &scriptHandler{ops: s.ops}

	s.E.GET("/scripts", h.List)
	s.E.POST("/scripts", h.Register)
	s.E.GET("/scripts/:name", h.Show)
	s.E.HEAD("/scripts/:name", h.Exists)
	s.E.DELETE("/scripts/:name", h.Remove)
	s.E.POST("/scripts/:name/call", h.Call)

	var evalMiddleware []echo.MiddlewareFunc
	if s.opts.EvalRateLimit > 0 {
		evalMiddleware = append(evalMiddleware, middleware.RateLimiter(s.opts.EvalRateLimit))
	}
	s.E.POST("/eval", h.Eval, evalMiddleware...)

	s.E.GET("/healthz", s.healthz)
}
