package apiingress

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/modcrafter77/hyperspot/pkg/logger"
	"github.com/modcrafter77/hyperspot/pkg/modkit/api"
)

// openAPIRegistry collects operation specs and component schemas and emits
// the OpenAPI document. It implements api.Registry.
type openAPIRegistry struct {
	mu sync.Mutex

	// specs in registration order
	specs []*api.OperationSpec

	handlerIDs map[string]bool
	routes     map[string]bool

	schemas map[string]map[string]any
}

func newOpenAPIRegistry() *openAPIRegistry {
	return &openAPIRegistry{
		handlerIDs: make(map[string]bool),
		routes:     make(map[string]bool),
		schemas:    make(map[string]map[string]any),
	}
}

func routeKey(method, path string) string {
	return method + " " + api.CanonicalPath(path)
}

// RegisterOperation records an operation; the first occurrence of a handler
// id or (method, path) wins.
func (r *openAPIRegistry) RegisterOperation(spec *api.OperationSpec) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := routeKey(spec.Method, spec.Path)
	if r.handlerIDs[spec.HandlerID] || r.routes[key] {
		return false
	}

	r.handlerIDs[spec.HandlerID] = true
	r.routes[key] = true

	clone := *spec
	r.specs = append(r.specs, &clone)
	return true
}

// EnsureSchema materializes a component schema. Identical re-registration is
// a no-op; conflicting content warns and overrides.
func (r *openAPIRegistry) EnsureSchema(name string, schema map[string]any) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.schemas[name]; ok {
		if reflect.DeepEqual(existing, schema) {
			return name
		}
		logger.Log.Warn("OpenAPI schema overridden with different content", "schema", name)
	}
	r.schemas[name] = schema
	return name
}

// Operations returns a snapshot of the registered specs.
func (r *openAPIRegistry) Operations() []*api.OperationSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*api.OperationSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// BuildDocument assembles the OpenAPI 3.1 document.
func (r *openAPIRegistry) BuildDocument(title, version string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make(map[string]any)
	for _, spec := range r.specs {
		path := api.OpenAPIPath(spec.Path)
		item, _ := paths[path].(map[string]any)
		if item == nil {
			item = make(map[string]any)
			paths[path] = item
		}
		item[strings.ToLower(spec.Method)] = r.operationObject(spec)
	}

	schemas := make(map[string]any, len(r.schemas))
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		schemas[name] = r.schemas[name]
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   title,
			"version": version,
		},
		"paths": paths,
		"components": map[string]any{
			"schemas": schemas,
			"securitySchemes": map[string]any{
				"bearerAuth": map[string]any{
					"type":         "http",
					"scheme":       "bearer",
					"bearerFormat": "JWT",
				},
			},
		},
	}
}

func (r *openAPIRegistry) operationObject(spec *api.OperationSpec) map[string]any {
	op := make(map[string]any)

	if spec.OperationID != "" {
		op["operationId"] = spec.OperationID
	}
	if spec.Summary != "" {
		op["summary"] = spec.Summary
	}
	if spec.Description != "" {
		op["description"] = spec.Description
	}
	if len(spec.Tags) > 0 {
		op["tags"] = spec.Tags
	}

	if len(spec.Params) > 0 {
		params := make([]any, 0, len(spec.Params))
		for _, p := range spec.Params {
			param := map[string]any{
				"name":     p.Name,
				"in":       string(p.Location),
				"required": p.Required,
				"schema":   map[string]any{"type": p.Type},
			}
			if p.Description != "" {
				param["description"] = p.Description
			}
			params = append(params, param)
		}
		op["parameters"] = params
	}

	if body := spec.RequestBody; body != nil {
		content := map[string]any{}
		media := map[string]any{}
		if body.SchemaName != "" {
			media["schema"] = map[string]any{"$ref": "#/components/schemas/" + body.SchemaName}
		}
		content[body.ContentType] = media

		reqBody := map[string]any{
			"content":  content,
			"required": body.Required,
		}
		if body.Description != "" {
			reqBody["description"] = body.Description
		}
		op["requestBody"] = reqBody
	}

	responses := make(map[string]any)
	for _, resp := range spec.Responses {
		media := map[string]any{}
		if resp.SchemaName != "" {
			media["schema"] = map[string]any{"$ref": "#/components/schemas/" + resp.SchemaName}
		}
		responses[fmt.Sprintf("%d", resp.Status)] = map[string]any{
			"description": resp.Description,
			"content": map[string]any{
				resp.ContentType: media,
			},
		}
	}
	op["responses"] = responses

	if spec.SecRequirement != nil && !spec.IsPublic {
		op["security"] = []any{
			map[string]any{"bearerAuth": []any{}},
		}
	}

	if rl := spec.RateLimit; rl != nil {
		op["x-rate-limit-rps"] = rl.RPS
		op["x-rate-limit-burst"] = rl.Burst
		op["x-in-flight-limit"] = rl.InFlight
	}

	return op
}
