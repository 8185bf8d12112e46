package server

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/nfrund/scriptops/internal/middleware"
	"github.com/nfrund/scriptops/internal/script"
)

// HealthChecker reports whether the database connection is usable.
type HealthChecker interface {
	IsHealthy() bool
}

// Options tunes the HTTP server.
type Options struct {
	Addr          string
	EvalRateLimit int // requests per minute per client on POST /eval, 0 disables
}

// Server exposes script operations over HTTP.
type Server struct {
	E      *echo.Echo
	ops    script.Operations
	health HealthChecker
	opts   Options
}

// CustomValidator wraps the go-playground/validator library to implement Echo's Validator interface.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate implements the echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// New creates a Server with its middleware and routes in place.
func New(ops script.Operations, health HealthChecker, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger)
	setupErrorHandling(e)

	s := &Server{E: e, ops: ops, health: health, opts: opts}
	s.RegisterRoutes()
	return s
}
