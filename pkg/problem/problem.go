// Package problem implements RFC 9457 problem documents, the error shape
// returned by every HTTP endpoint of the runtime.
package problem

import (
	"encoding/json"
	"net/http"

	"github.com/modcrafter77/hyperspot/pkg/logger"
)

// ContentType is the media type of a problem document.
const ContentType = "application/problem+json"

// Problem is an RFC 9457 problem document.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Errors carries per-field validation problems for 422 responses.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError describes a single invalid field in a validation problem.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New builds a problem for an HTTP status with the default title.
func New(status int, detail string) *Problem {
	return &Problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}
}

// Validation builds a 422 problem carrying field errors.
func Validation(detail string, fields ...FieldError) *Problem {
	p := New(http.StatusUnprocessableEntity, detail)
	p.Errors = fields
	return p
}

func (p *Problem) Error() string {
	if p.Detail != "" {
		return p.Title + ": " + p.Detail
	}
	return p.Title
}

// Write renders the problem to an HTTP response.
func (p *Problem) Write(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		logger.Log.Error("Failed to encode problem response", "error", err)
	}
}

// Respond writes a fresh problem for the given status and detail.
func Respond(w http.ResponseWriter, r *http.Request, status int, detail string) {
	New(status, detail).Write(w, r)
}

// Schema is the OpenAPI component schema of a Problem document.
func Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type":     map[string]any{"type": "string"},
			"title":    map[string]any{"type": "string"},
			"status":   map[string]any{"type": "integer"},
			"detail":   map[string]any{"type": "string"},
			"instance": map[string]any{"type": "string"},
		},
		"required": []any{"type", "title", "status"},
	}
}

// ValidationSchema is the OpenAPI component schema of a validation Problem.
func ValidationSchema() map[string]any {
	s := Schema()
	props := s["properties"].(map[string]any)
	props["errors"] = map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"field":   map[string]any{"type": "string"},
				"message": map[string]any{"type": "string"},
			},
			"required": []any{"field", "message"},
		},
	}
	return s
}
