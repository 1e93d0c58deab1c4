package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/modcrafter77/hyperspot/pkg/logger"
	"github.com/modcrafter77/hyperspot/pkg/problem"
)

// Seal errors. A builder may only be sealed once a handler is attached and at
// least one response is declared.
var (
	ErrMissingHandler  = errors.New("operation has no handler")
	ErrMissingResponse = errors.New("operation declares no responses")
)

// Builder assembles one HTTP operation. Descriptive methods may be called in
// any order; Seal refuses to produce a registrable operation until both a
// handler and at least one response are present.
type Builder struct {
	spec        OperationSpec
	handler     http.Handler
	middlewares []func(http.Handler) http.Handler
	schemas     map[string]map[string]any
}

func newBuilder(method, path string) *Builder {
	return &Builder{
		spec: OperationSpec{
			Method:    method,
			Path:      path,
			HandlerID: defaultHandlerID(method, path),
		},
		schemas: make(map[string]map[string]any),
	}
}

// Get starts a GET operation.
func Get(path string) *Builder { return newBuilder(http.MethodGet, path) }

// Post starts a POST operation.
func Post(path string) *Builder { return newBuilder(http.MethodPost, path) }

// Put starts a PUT operation.
func Put(path string) *Builder { return newBuilder(http.MethodPut, path) }

// Delete starts a DELETE operation.
func Delete(path string) *Builder { return newBuilder(http.MethodDelete, path) }

// Patch starts a PATCH operation.
func Patch(path string) *Builder { return newBuilder(http.MethodPatch, path) }

// Spec exposes the accumulated spec, primarily for tests.
func (b *Builder) Spec() *OperationSpec { return &b.spec }

// OperationID sets the operation id.
func (b *Builder) OperationID(id string) *Builder {
	b.spec.OperationID = id
	return b
}

// Summary sets the operation summary.
func (b *Builder) Summary(text string) *Builder {
	b.spec.Summary = text
	return b
}

// Description sets the operation description.
func (b *Builder) Description(text string) *Builder {
	b.spec.Description = text
	return b
}

// Tag appends a tag.
func (b *Builder) Tag(tag string) *Builder {
	b.spec.Tags = append(b.spec.Tags, tag)
	return b
}

// HandlerID overrides the derived handler id.
func (b *Builder) HandlerID(id string) *Builder {
	b.spec.HandlerID = id
	return b
}

// PathParam declares a required path parameter of type string.
func (b *Builder) PathParam(name, description string) *Builder {
	b.spec.Params = append(b.spec.Params, ParamSpec{
		Name:        name,
		Location:    InPath,
		Required:    true,
		Description: description,
		Type:        "string",
	})
	return b
}

// QueryParam declares a query parameter of type string.
func (b *Builder) QueryParam(name string, required bool, description string) *Builder {
	return b.QueryParamTyped(name, required, description, "string")
}

// QueryParamTyped declares a query parameter with an explicit OpenAPI type.
func (b *Builder) QueryParamTyped(name string, required bool, description, paramType string) *Builder {
	b.spec.Params = append(b.spec.Params, ParamSpec{
		Name:        name,
		Location:    InQuery,
		Required:    required,
		Description: description,
		Type:        paramType,
	})
	return b
}

// HeaderParam declares a header parameter.
func (b *Builder) HeaderParam(name string, required bool, description string) *Builder {
	b.spec.Params = append(b.spec.Params, ParamSpec{
		Name:        name,
		Location:    InHeader,
		Required:    required,
		Description: description,
		Type:        "string",
	})
	return b
}

// RequireAuth marks the operation as requiring a resource:action permission.
func (b *Builder) RequireAuth(resource, action string) *Builder {
	b.spec.SecRequirement = &SecRequirement{Resource: resource, Action: action}
	return b
}

// Public marks the operation as explicitly public (no auth).
func (b *Builder) Public() *Builder {
	b.spec.IsPublic = true
	return b
}

// AllowContentTypes whitelists request content types; anything else gets 415.
func (b *Builder) AllowContentTypes(types ...string) *Builder {
	if b.spec.RequestBody == nil {
		b.spec.RequestBody = &RequestBodySpec{ContentType: "application/json"}
	}
	b.spec.RequestBody.AllowedContentTypes = types
	return b
}

// RequireRateLimit sets per-operation rate and concurrency limits.
func (b *Builder) RequireRateLimit(rps, burst, inFlight int) *Builder {
	b.spec.RateLimit = &RateLimitSpec{RPS: rps, Burst: burst, InFlight: inFlight}
	return b
}

// JSONRequest declares a required JSON request body without a schema.
func (b *Builder) JSONRequest(description string) *Builder {
	b.spec.RequestBody = &RequestBodySpec{
		ContentType: "application/json",
		Description: description,
		Required:    true,
	}
	return b
}

// JSONRequestSchema declares a required JSON request body referencing a
// component schema that will be materialized at registration.
func (b *Builder) JSONRequestSchema(schemaName string, schema map[string]any, description string) *Builder {
	b.spec.RequestBody = &RequestBodySpec{
		ContentType: "application/json",
		Description: description,
		SchemaName:  schemaName,
		Required:    true,
	}
	b.declareSchema(schemaName, schema)
	return b
}

// RequestOptional marks the declared request body as optional.
func (b *Builder) RequestOptional() *Builder {
	if b.spec.RequestBody != nil {
		b.spec.RequestBody.Required = false
	}
	return b
}

// Handler attaches the operation handler.
func (b *Builder) Handler(h http.Handler) *Builder {
	b.handler = h
	return b
}

// HandlerFunc attaches the operation handler from a plain function.
func (b *Builder) HandlerFunc(h http.HandlerFunc) *Builder {
	b.handler = h
	return b
}

// Middleware attaches per-route middleware, applied outermost first at
// registration time.
func (b *Builder) Middleware(mw ...func(http.Handler) http.Handler) *Builder {
	b.middlewares = append(b.middlewares, mw...)
	return b
}

// JSONResponse declares a JSON response without a schema.
func (b *Builder) JSONResponse(status int, description string) *Builder {
	b.spec.Responses = append(b.spec.Responses, ResponseSpec{
		Status:      status,
		ContentType: "application/json",
		Description: description,
	})
	return b
}

// JSONResponseWithSchema declares a JSON response referencing a component
// schema that will be materialized at registration.
func (b *Builder) JSONResponseWithSchema(status int, description, schemaName string, schema map[string]any) *Builder {
	b.spec.Responses = append(b.spec.Responses, ResponseSpec{
		Status:      status,
		ContentType: "application/json",
		Description: description,
		SchemaName:  schemaName,
	})
	b.declareSchema(schemaName, schema)
	return b
}

// TextResponse declares a text/plain response.
func (b *Builder) TextResponse(status int, description string) *Builder {
	b.spec.Responses = append(b.spec.Responses, ResponseSpec{
		Status:      status,
		ContentType: "text/plain",
		Description: description,
	})
	return b
}

// HTMLResponse declares a text/html response.
func (b *Builder) HTMLResponse(status int, description string) *Builder {
	b.spec.Responses = append(b.spec.Responses, ResponseSpec{
		Status:      status,
		ContentType: "text/html",
		Description: description,
	})
	return b
}

// ProblemResponse declares an RFC 9457 problem response and registers the
// standard Problem schema.
func (b *Builder) ProblemResponse(status int, description string) *Builder {
	b.spec.Responses = append(b.spec.Responses, ResponseSpec{
		Status:      status,
		ContentType: problem.ContentType,
		Description: description,
		SchemaName:  "Problem",
	})
	b.declareSchema("Problem", problem.Schema())
	return b
}

// SSEJSON declares a text/event-stream response carrying events of the named
// schema.
func (b *Builder) SSEJSON(eventSchemaName string, eventSchema map[string]any, description string) *Builder {
	b.spec.Responses = append(b.spec.Responses, ResponseSpec{
		Status:      http.StatusOK,
		ContentType: "text/event-stream",
		Description: description,
		SchemaName:  eventSchemaName,
	})
	b.declareSchema(eventSchemaName, eventSchema)
	return b
}

// StandardErrors declares the standard problem responses
// (400, 401, 403, 404, 409, 422, 429, 500).
func (b *Builder) StandardErrors() *Builder {
	for _, status := range []int{
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusUnprocessableEntity,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
	} {
		b.ProblemResponse(status, http.StatusText(status))
	}
	return b
}

// With422ValidationError declares a structured validation problem response.
func (b *Builder) With422ValidationError() *Builder {
	b.spec.Responses = append(b.spec.Responses, ResponseSpec{
		Status:      http.StatusUnprocessableEntity,
		ContentType: problem.ContentType,
		Description: "Validation failed",
		SchemaName:  "ValidationProblem",
	})
	b.declareSchema("ValidationProblem", problem.ValidationSchema())
	return b
}

func (b *Builder) declareSchema(name string, schema map[string]any) {
	if schema == nil {
		return
	}
	b.schemas[name] = schema
}

// Seal validates the builder and produces a registrable operation. It fails
// with ErrMissingHandler or ErrMissingResponse when the mandatory transitions
// have not happened.
func (b *Builder) Seal() (*SealedOperation, error) {
	if b.handler == nil {
		return nil, fmt.Errorf("%s %s: %w", b.spec.Method, b.spec.Path, ErrMissingHandler)
	}
	if len(b.spec.Responses) == 0 {
		return nil, fmt.Errorf("%s %s: %w", b.spec.Method, b.spec.Path, ErrMissingResponse)
	}

	return &SealedOperation{
		spec:        b.spec,
		handler:     b.handler,
		middlewares: b.middlewares,
		schemas:     b.schemas,
	}, nil
}

// SealedOperation is a validated operation ready for router registration.
type SealedOperation struct {
	spec        OperationSpec
	handler     http.Handler
	middlewares []func(http.Handler) http.Handler
	schemas     map[string]map[string]any
}

// Spec returns the operation spec.
func (s *SealedOperation) Spec() *OperationSpec { return &s.spec }

// Register mounts the operation on the router and records it with the OpenAPI
// registry. The first occurrence of a handler id or (method, path) wins;
// duplicates are logged and dropped.
func (s *SealedOperation) Register(r chi.Router, reg Registry) error {
	if reg != nil {
		if ok := reg.RegisterOperation(&s.spec); !ok {
			logger.Log.Error("Duplicate operation dropped",
				"method", s.spec.Method,
				"path", s.spec.Path,
				"handler_id", s.spec.HandlerID,
			)
			return nil
		}
		for name, schema := range s.schemas {
			reg.EnsureSchema(name, schema)
		}
	}

	h := s.handler
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		h = s.middlewares[i](h)
	}

	r.Method(s.spec.Method, ChiPath(s.spec.Path), h)
	return nil
}

// Register is the usual one-call flow: seal the builder and mount it.
func (b *Builder) Register(r chi.Router, reg Registry) error {
	sealed, err := b.Seal()
	if err != nil {
		return err
	}
	return sealed.Register(r, reg)
}
