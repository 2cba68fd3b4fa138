package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/modelrelay/modelrelay/pkg/model"
)

// openaiErrorBody is the OpenAI-dialect error envelope.
type openaiErrorBody struct {
	Error openaiErrorDetail `json:"error"`
}

type openaiErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// anthropicErrorBody is the Anthropic-dialect error envelope.
type anthropicErrorBody struct {
	Type  string               `json:"type"`
	Error anthropicErrorDetail `json:"error"`
}

type anthropicErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func openaiError(e *model.Error) openaiErrorBody {
	return openaiErrorBody{Error: openaiErrorDetail{
		Message: e.Message,
		Type:    string(e.Kind),
	}}
}

func anthropicError(e *model.Error) anthropicErrorBody {
	return anthropicErrorBody{Type: "error", Error: anthropicErrorDetail{
		Type:    string(e.Kind),
		Message: e.Message,
	}}
}

// writeJSONError reports an error with an HTTP status in the caller's
// dialect. Only usable before streaming has started.
func writeJSONError(w http.ResponseWriter, e *model.Error, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write error response", "error", err.Error())
	}
}
