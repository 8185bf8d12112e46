package server

// RegisterRequest is the body of POST /scripts.
type RegisterRequest struct {
	Name   string   `json:"name" validate:"omitempty,max=255"`
	Code   string   `json:"code" validate:"required"`
	Params []string `json:"params" validate:"omitempty,dive,required"`
}

// CallRequest is the body of POST /scripts/:name/call.
type CallRequest struct {
	Args []any `json:"args"`
}

// EvalRequest is the body of POST /eval.
type EvalRequest struct {
	Name   string   `json:"name" validate:"omitempty,max=255"`
	Code   string   `json:"code" validate:"required"`
	Params []string `json:"params" validate:"omitempty,dive,required"`
	Args   []any    `json:"args"`
}

// ScriptResponse describes a registered script.
type ScriptResponse struct {
	Name       string   `json:"name"`
	Params     []string `json:"params"`
	Definition string   `json:"definition,omitempty"`
}

// ResultResponse carries the value a script returned.
type ResultResponse struct {
	Result any `json:"result"`
}

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
