package server

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/scriptops/internal/middleware"
	"github.com/nfrund/scriptops/internal/script"
)

// setupErrorHandling installs a handler that renders every error as an
// ErrorResponse. Errors that map to no known category are logged with a
// stack trace.
func setupErrorHandling(e *echo.Echo) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, resp := errorResponse(err)
		logger := middleware.FromContext(c.Request().Context())
		if status == http.StatusInternalServerError {
			logger.Error("Internal Server Error (Unhandled)",
				"error", err,
				"stack_trace", string(debug.Stack()),
			)
		} else if status == http.StatusBadGateway {
			logger.Error("Script operation failed", "error", err)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, resp)
		}
		if writeErr != nil {
			logger.Error("Failed to write error response", "error", writeErr)
		}
	}
}

func errorResponse(err error) (int, ErrorResponse) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		msg := fmt.Sprint(he.Message)
		if he.Internal != nil && msg == "" {
			msg = he.Internal.Error()
		}
		return he.Code, ErrorResponse{Code: statusCode(he.Code), Message: msg}
	case errors.Is(err, script.ErrInvalidName):
		return http.StatusBadRequest, ErrorResponse{Code: "invalid_name", Message: err.Error()}
	case errors.Is(err, script.ErrInvalidScript):
		return http.StatusBadRequest, ErrorResponse{Code: "invalid_script", Message: err.Error()}
	case errors.Is(err, script.ErrMalformedScript):
		return http.StatusBadRequest, ErrorResponse{Code: "malformed_script", Message: err.Error()}
	case errors.Is(err, script.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Code: "not_found", Message: err.Error()}
	case errors.Is(err, script.ErrAlreadyExists):
		return http.StatusConflict, ErrorResponse{Code: "conflict", Message: err.Error()}
	case errors.Is(err, script.ErrDataAccess):
		return http.StatusBadGateway, ErrorResponse{Code: "data_access", Message: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorResponse{Code: "internal", Message: http.StatusText(http.StatusInternalServerError)}
	}
}

// statusCode turns an HTTP status into a snake_case error code.
func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
