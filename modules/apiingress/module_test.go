package apiingress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modcrafter77/hyperspot/pkg/modkit/api"
	"github.com/modcrafter77/hyperspot/pkg/modkit/client"
	"github.com/modcrafter77/hyperspot/pkg/modkit/modctx"
	"github.com/modcrafter77/hyperspot/pkg/problem"
)

func testContext(t *testing.T, raw map[string]any) *modctx.Context {
	t.Helper()
	return modctx.New(ModuleName, raw, client.NewHub(), nil, context.Background())
}

// composeIngress runs prepare -> register (via fn) -> finalize and returns
// the ingress with its final handler.
func composeIngress(t *testing.T, raw map[string]any, register func(r chi.Router, reg api.Registry)) *Ingress {
	t.Helper()

	ingress := New()
	mctx := testContext(t, raw)
	ctx := context.Background()

	require.NoError(t, ingress.Init(ctx, mctx))

	router := chi.NewRouter()
	router, err := ingress.RestPrepare(ctx, mctx, router)
	require.NoError(t, err)

	if register != nil {
		register(router, ingress.Registry())
	}

	_, err = ingress.RestFinalize(ctx, mctx, router)
	require.NoError(t, err)
	require.NotNil(t, ingress.Handler())

	return ingress
}

func doRequest(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	ingress := composeIngress(t, nil, nil)

	for _, path := range []string{"/health", "/healthz"} {
		rec := doRequest(ingress.Handler(), httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	}
}

func TestRequestIDPropagation(t *testing.T) {
	ingress := composeIngress(t, map[string]any{"auth": map[string]any{"disabled": true}}, nil)

	// Missing id is generated.
	rec := doRequest(ingress.Handler(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	// Provided id is propagated.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec = doRequest(ingress.Handler(), req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestOpenAPIDocumentServed(t *testing.T) {
	ingress := composeIngress(t, nil, func(r chi.Router, reg api.Registry) {
		require.NoError(t, api.Get("/users").
			OperationID("list_users").
			JSONResponse(http.StatusOK, "users").
			HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }).
			Register(r, reg))
	})

	rec := doRequest(ingress.Handler(), httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "3.1.0", doc["openapi"])

	paths := doc["paths"].(map[string]any)
	require.Contains(t, paths, "/users")

	components := doc["components"].(map[string]any)
	schemes := components["securitySchemes"].(map[string]any)
	assert.Contains(t, schemes, "bearerAuth")
}

func TestDocsPageServed(t *testing.T) {
	ingress := composeIngress(t, nil, nil)

	rec := doRequest(ingress.Handler(), httptest.NewRequest(http.MethodGet, "/docs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "swagger-ui")
}

func TestDocsDisabled(t *testing.T) {
	ingress := composeIngress(t, map[string]any{"docs_enabled": false}, nil)

	rec := doRequest(ingress.Handler(), httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDuplicateOperationScenario(t *testing.T) {
	ingress := composeIngress(t, nil, func(r chi.Router, reg api.Registry) {
		build := func() *api.Builder {
			return api.Get("/users").
				HandlerID("list_users").
				JSONResponse(http.StatusOK, "users").
				HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		}
		require.NoError(t, build().Register(r, reg))
		require.NoError(t, build().Register(r, reg))
	})

	ops := ingress.registry.Operations()
	count := 0
	for _, op := range ops {
		if op.Path == "/users" && op.Method == http.MethodGet {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one GET /users operation survives")

	rec := doRequest(ingress.Handler(), httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	users := doc["paths"].(map[string]any)["/users"].(map[string]any)
	assert.Len(t, users, 1)
}

func TestSSEOperationScenario(t *testing.T) {
	evtSchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"kind": map[string]any{"type": "string"},
		},
	}

	ingress := composeIngress(t, nil, func(r chi.Router, reg api.Registry) {
		require.NoError(t, api.Get("/events").
			Summary("stream").
			SSEJSON("Evt", evtSchema, "event stream").
			HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }).
			Register(r, reg))
	})

	rec := doRequest(ingress.Handler(), httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))

	events := doc["paths"].(map[string]any)["/events"].(map[string]any)
	get := events["get"].(map[string]any)
	assert.Equal(t, "stream", get["summary"])

	responses := get["responses"].(map[string]any)
	ok := responses["200"].(map[string]any)
	content := ok["content"].(map[string]any)
	require.Contains(t, content, "text/event-stream")

	media := content["text/event-stream"].(map[string]any)
	schema := media["schema"].(map[string]any)
	assert.Equal(t, "#/components/schemas/Evt", schema["$ref"])

	// The Evt schema is materialized, not a self-reference.
	schemas := doc["components"].(map[string]any)["schemas"].(map[string]any)
	evt := schemas["Evt"].(map[string]any)
	assert.Equal(t, "object", evt["type"])
}

func TestRateLimitVendorExtensions(t *testing.T) {
	ingress := composeIngress(t, nil, func(r chi.Router, reg api.Registry) {
		require.NoError(t, api.Get("/limited").
			RequireRateLimit(10, 2, 1).
			JSONResponse(http.StatusOK, "ok").
			HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }).
			Register(r, reg))
	})

	rec := doRequest(ingress.Handler(), httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))

	get := doc["paths"].(map[string]any)["/limited"].(map[string]any)["get"].(map[string]any)
	assert.EqualValues(t, 10, get["x-rate-limit-rps"])
	assert.EqualValues(t, 2, get["x-rate-limit-burst"])
	assert.EqualValues(t, 1, get["x-in-flight-limit"])
}

func TestRateLimitEnforced(t *testing.T) {
	raw := map[string]any{"auth": map[string]any{"disabled": true}}
	ingress := composeIngress(t, raw, func(r chi.Router, reg api.Registry) {
		require.NoError(t, api.Get("/limited").
			RequireRateLimit(1, 2, 8).
			JSONResponse(http.StatusOK, "ok").
			HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }).
			Register(r, reg))
	})

	// Burst of 2 passes, third request within the same instant is limited.
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := doRequest(ingress.Handler(), httptest.NewRequest(http.MethodGet, "/limited", nil))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
}

func TestMimeValidation(t *testing.T) {
	raw := map[string]any{"auth": map[string]any{"disabled": true}}
	ingress := composeIngress(t, raw, func(r chi.Router, reg api.Registry) {
		require.NoError(t, api.Post("/upload").
			JSONRequest("payload").
			AllowContentTypes("application/json").
			JSONResponse(http.StatusAccepted, "accepted").
			HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) }).
			Register(r, reg))
	})

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := doRequest(ingress.Handler(), req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("<xml/>"))
	req.Header.Set("Content-Type", "application/xml")
	rec = doRequest(ingress.Handler(), req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, problem.ContentType, rec.Header().Get("Content-Type"))
}

func signToken(t *testing.T, secret string, perms []string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "tester",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if perms != nil {
		anyPerms := make([]any, len(perms))
		for i, p := range perms {
			anyPerms[i] = p
		}
		claims["perms"] = anyPerms
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthRequirements(t *testing.T) {
	raw := map[string]any{
		"auth": map[string]any{"jwt_secret": "test-secret"},
	}

	ingress := composeIngress(t, raw, func(r chi.Router, reg api.Registry) {
		ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

		require.NoError(t, api.Get("/public").
			Public().
			JSONResponse(http.StatusOK, "ok").
			HandlerFunc(ok).
			Register(r, reg))

		require.NoError(t, api.Get("/secured").
			RequireAuth("users", "read").
			JSONResponse(http.StatusOK, "ok").
			HandlerFunc(ok).
			Register(r, reg))
	})

	h := ingress.Handler()

	// Built-in routes are always public.
	rec := doRequest(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Explicitly public route requires no token.
	rec = doRequest(h, httptest.NewRequest(http.MethodGet, "/public", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Secured route without a token: 401 problem.
	rec = doRequest(h, httptest.NewRequest(http.MethodGet, "/secured", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, problem.ContentType, rec.Header().Get("Content-Type"))

	// Valid token without the permission: 403.
	req := httptest.NewRequest(http.MethodGet, "/secured", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret", []string{"other:perm"}))
	rec = doRequest(h, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Valid token with users:read passes.
	req = httptest.NewRequest(http.MethodGet, "/secured", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret", []string{"users:read"}))
	rec = doRequest(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Token signed with the wrong secret: 401.
	req = httptest.NewRequest(http.MethodGet, "/secured", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "wrong-secret", []string{"users:read"}))
	rec = doRequest(h, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPanicMapsToProblem(t *testing.T) {
	raw := map[string]any{"auth": map[string]any{"disabled": true}}
	ingress := composeIngress(t, raw, func(r chi.Router, reg api.Registry) {
		require.NoError(t, api.Get("/boom").
			JSONResponse(http.StatusOK, "ok").
			HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("kaboom") }).
			Register(r, reg))
	})

	rec := doRequest(ingress.Handler(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, problem.ContentType, rec.Header().Get("Content-Type"))
}

func TestServeLifecycle(t *testing.T) {
	raw := map[string]any{
		"listen_addr": "127.0.0.1:0",
		"auth":        map[string]any{"disabled": true},
	}
	ingress := composeIngress(t, raw, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, ingress.Start(ctx))
	require.NoError(t, ingress.Stop(context.Background()))
}
