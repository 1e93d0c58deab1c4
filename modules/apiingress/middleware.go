package apiingress

import (
	"context"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/modcrafter77/hyperspot/pkg/logger"
	"github.com/modcrafter77/hyperspot/pkg/modkit/api"
	"github.com/modcrafter77/hyperspot/pkg/problem"
	"github.com/modcrafter77/hyperspot/pkg/ratelimit"
)

// RequestIDHeader is the canonical request id header.
const RequestIDHeader = "X-Request-Id"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	operationKey
)

// RequestIDFromContext returns the request id pushed by the ingress.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func operationFromContext(ctx context.Context) *api.OperationSpec {
	spec, _ := ctx.Value(operationKey).(*api.OperationSpec)
	return spec
}

// requestIDMiddleware propagates an incoming X-Request-Id, generates one when
// missing, mirrors it on the response and pushes it into the request context.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(RequestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
			r.Header.Set(RequestIDHeader, rid)
		}
		w.Header().Set(RequestIDHeader, rid)

		ctx := context.WithValue(r.Context(), requestIDKey, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// timeoutMiddleware bounds request handling with a context deadline.
func timeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if timeout <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bodyLimitMiddleware caps request body size.
func bodyLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resolveOperationMiddleware matches the request against the route table and
// pushes the operation spec into the context for the per-route layers below.
func (m *Ingress) resolveOperationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx := chi.NewRouteContext()
		if mux, ok := m.routes().(*chi.Mux); ok && mux.Match(rctx, r.Method, r.URL.Path) {
			pattern := rctx.RoutePattern()
			if spec := m.specByRoute(r.Method, pattern); spec != nil {
				r = r.WithContext(context.WithValue(r.Context(), operationKey, spec))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// mimeValidationMiddleware enforces the per-operation content-type whitelist;
// disallowed types get a 415 problem.
func mimeValidationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		spec := operationFromContext(r.Context())
		if spec == nil || spec.RequestBody == nil || len(spec.RequestBody.AllowedContentTypes) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		ct := r.Header.Get("Content-Type")
		if ct == "" && r.ContentLength == 0 {
			next.ServeHTTP(w, r)
			return
		}

		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil {
			problem.Respond(w, r, http.StatusUnsupportedMediaType, "malformed Content-Type header")
			return
		}

		for _, allowed := range spec.RequestBody.AllowedContentTypes {
			if strings.EqualFold(mediaType, allowed) {
				next.ServeHTTP(w, r)
				return
			}
		}

		problem.Respond(w, r, http.StatusUnsupportedMediaType,
			"unsupported media type: "+mediaType)
	})
}

// routeGuard holds the per-route limiter and in-flight semaphore.
type routeGuard struct {
	limiter   ratelimit.Limiter
	inFlight  *ratelimit.Semaphore
	handlerID string
}

// rateLimitMiddleware enforces per-route token-bucket and in-flight limits:
// exhaustion maps to 429 (rate) or 503 (in-flight), both problems.
func (m *Ingress) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		spec := operationFromContext(r.Context())
		if spec == nil || spec.RateLimit == nil {
			next.ServeHTTP(w, r)
			return
		}

		guard := m.guardFor(spec.HandlerID)
		if guard == nil {
			next.ServeHTTP(w, r)
			return
		}

		if !guard.inFlight.TryAcquire() {
			problem.Respond(w, r, http.StatusServiceUnavailable, "in-flight limit reached")
			return
		}
		defer guard.inFlight.Release()

		allowed, err := guard.limiter.Allow(r.Context(), guard.handlerID)
		if err != nil {
			logger.Log.Warn("Rate limiter error, admitting request", "error", err)
			allowed = true
		}
		if !allowed {
			problem.Respond(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// recoverMiddleware converts handler panics into a 500 problem.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Log.Error("Panic in HTTP handler",
					"path", r.URL.Path,
					"panic", rec,
					"request_id", RequestIDFromContext(r.Context()),
				)
				problem.Respond(w, r, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware enforces bearer-token authentication. Routes are public when
// built-in, explicitly marked public, or when auth is disabled; operations
// with a resource:action requirement additionally need that permission in the
// token's perms claim.
func (m *Ingress) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := m.config()
		if cfg.Auth.Disabled {
			next.ServeHTTP(w, r)
			return
		}

		if isBuiltinPublic(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		spec := operationFromContext(r.Context())
		if spec != nil && spec.IsPublic {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.parseBearer(r)
		if err != nil {
			problem.Respond(w, r, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}

		if spec != nil && spec.SecRequirement != nil {
			needed := spec.SecRequirement.Resource + ":" + spec.SecRequirement.Action
			if !hasPermission(claims, needed) {
				problem.Respond(w, r, http.StatusForbidden, "missing permission "+needed)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func isBuiltinPublic(method, path string) bool {
	if method != http.MethodGet {
		return false
	}
	switch path {
	case "/health", "/healthz", "/openapi.json", "/docs", "/metrics":
		return true
	}
	return false
}

func (m *Ingress) parseBearer(r *http.Request) (jwt.MapClaims, error) {
	header := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return nil, jwt.ErrTokenMalformed
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(m.config().Auth.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func hasPermission(claims jwt.MapClaims, needed string) bool {
	perms, ok := claims["perms"].([]any)
	if !ok {
		return false
	}
	for _, p := range perms {
		if s, ok := p.(string); ok && s == needed {
			return true
		}
	}
	return false
}
