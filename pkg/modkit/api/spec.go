// Package api implements the typed HTTP operation builder and the OpenAPI
// registry contract between REST modules and the REST host.
package api

import "strings"

// ParamLocation is where an operation parameter lives.
type ParamLocation string

const (
	InPath   ParamLocation = "path"
	InQuery  ParamLocation = "query"
	InHeader ParamLocation = "header"
	InCookie ParamLocation = "cookie"
)

// ParamSpec describes one operation parameter.
type ParamSpec struct {
	Name        string
	Location    ParamLocation
	Required    bool
	Description string
	Type        string // JSON Schema type (string, integer, ...)
}

// RequestBodySpec describes the request body of an operation.
type RequestBodySpec struct {
	ContentType string
	Description string
	// SchemaName references a registered component schema, when set.
	SchemaName string
	Required   bool
	// AllowedContentTypes is an optional whitelist enforced by the ingress;
	// disallowed types get a 415 problem.
	AllowedContentTypes []string
}

// ResponseSpec describes one declared response of an operation.
type ResponseSpec struct {
	Status      int
	ContentType string
	Description string
	SchemaName  string
}

// SecRequirement is the resource:action permission an operation demands.
type SecRequirement struct {
	Resource string
	Action   string
}

// RateLimitSpec carries per-operation rate and concurrency limits.
type RateLimitSpec struct {
	// RPS is the steady-state refill rate of the token bucket.
	RPS int
	// Burst is the token bucket capacity.
	Burst int
	// InFlight bounds concurrent requests on the route.
	InFlight int
}

// OperationSpec is the full description of one HTTP operation.
type OperationSpec struct {
	Method      string
	Path        string
	OperationID string
	Summary     string
	Description string
	Tags        []string
	Params      []ParamSpec
	RequestBody *RequestBodySpec
	Responses   []ResponseSpec

	// HandlerID uniquely identifies the handler within the process.
	HandlerID string

	SecRequirement *SecRequirement
	IsPublic       bool
	RateLimit      *RateLimitSpec
}

// Registry is implemented by the REST host: it receives operation specs and
// materializes component schemas for the OpenAPI document.
type Registry interface {
	// RegisterOperation records an operation. It reports false when the
	// handler id or (method, path) pair is already taken; such duplicates
	// are dropped by the caller.
	RegisterOperation(spec *OperationSpec) bool

	// EnsureSchema materializes a named component schema and returns the
	// canonical name for $ref use. Identical re-registration is a no-op;
	// conflicting content warns and overrides.
	EnsureSchema(name string, schema map[string]any) string
}

// defaultHandlerID derives a stable handler id from method and path.
func defaultHandlerID(method, path string) string {
	return strings.ToLower(method) + ":" + strings.NewReplacer("/", "_", "{", "_", "}", "_", "*", "_").Replace(path)
}

// ChiPath converts an internal path template to the chi routing form:
// "{name}" segments are shared, wildcards "{*x}" become chi's "/*".
func ChiPath(path string) string {
	if i := strings.Index(path, "{*"); i >= 0 {
		if end := strings.Index(path[i:], "}"); end >= 0 {
			return path[:i] + "*"
		}
	}
	return path
}

// OpenAPIPath converts an internal path template to the OpenAPI form:
// wildcards "{*x}" become plain "{x}".
func OpenAPIPath(path string) string {
	return strings.ReplaceAll(path, "{*", "{")
}

// CanonicalPath normalizes a template for duplicate detection.
func CanonicalPath(path string) string {
	return OpenAPIPath(path)
}
