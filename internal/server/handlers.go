package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/scriptops/internal/middleware"
	"github.com/nfrund/scriptops/internal/script"
)

type scriptHandler struct {
	ops script.Operations
}

// List returns the sorted names of all registered scripts.
func (h *scriptHandler) List(c echo.Context) error {
	names, err := h.ops.ScriptNames(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, names.Sorted())
}

// Register stores a script and returns the reference it was registered under.
func (h *scriptHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()

	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format.")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	s, err := buildScript(req.Name, req.Code, req.Params)
	if err != nil {
		return err
	}
	ref, err := h.ops.Register(ctx, s)
	if err != nil {
		return err
	}

	middleware.FromContext(ctx).Info("Script registered via API", "event", "api_script_registered", "script", ref.Name())
	return c.JSON(http.StatusCreated, ScriptResponse{Name: ref.Name(), Params: nonNil(ref.Params())})
}

// Show returns the stored definition of a script.
func (h *scriptHandler) Show(c echo.Context) error {
	name := c.Param("name")
	def, err := h.ops.Lookup(c.Request().Context(), name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ScriptResponse{Name: name, Params: nonNil(script.DefinitionParams(def)), Definition: def})
}

// Exists answers HEAD requests with 200 or 404.
func (h *scriptHandler) Exists(c echo.Context) error {
	found, err := h.ops.Exists(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	if !found {
		return c.NoContent(http.StatusNotFound)
	}
	return c.NoContent(http.StatusOK)
}

// Remove drops a registered script.
func (h *scriptHandler) Remove(c echo.Context) error {
	if err := h.ops.Remove(c.Request().Context(), c.Param("name")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Call invokes a registered script by name.
func (h *scriptHandler) Call(c echo.Context) error {
	var req CallRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format.")
	}
	result, err := h.ops.Call(c.Request().Context(), c.Param("name"), req.Args...)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ResultResponse{Result: result})
}

// Eval executes a script, by name when it is registered under the given
// name and as a one-shot evaluation otherwise.
func (h *scriptHandler) Eval(c echo.Context) error {
	var req EvalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format.")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	s, err := buildScript(req.Name, req.Code, req.Params)
	if err != nil {
		return err
	}
	result, err := h.ops.Execute(c.Request().Context(), s, req.Args...)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ResultResponse{Result: result})
}

func (s *Server) healthz(c echo.Context) error {
	if s.health != nil && !s.health.IsHealthy() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func buildScript(name, code string, params []string) (script.ServerSideScript, error) {
	if name != "" {
		return script.NewNamedScript(name, code, params...)
	}
	return script.NewScript(code, params...)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
