// Package apiingress is the REST host module: it owns the HTTP router, the
// OpenAPI registry and the ingress middleware stack, and serves the composed
// router during the start phase.
package apiingress

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/modcrafter77/hyperspot/pkg/logger"
	"github.com/modcrafter77/hyperspot/pkg/metrics"
	"github.com/modcrafter77/hyperspot/pkg/modkit/api"
	"github.com/modcrafter77/hyperspot/pkg/modkit/lifecycle"
	"github.com/modcrafter77/hyperspot/pkg/modkit/modctx"
	"github.com/modcrafter77/hyperspot/pkg/ratelimit"
	"github.com/modcrafter77/hyperspot/pkg/telemetry"
)

// ModuleName is the registry name of the ingress.
const ModuleName = "api_ingress"

// Ingress is the REST host module.
type Ingress struct {
	mu  sync.RWMutex
	cfg Config

	registry *openAPIRegistry

	// inner is the routed chi mux; final is the full middleware stack.
	inner chi.Router
	final http.Handler

	specsByRoute map[string]*api.OperationSpec
	guards       map[string]*routeGuard

	wrapper *lifecycle.Wrapper
}

// New creates the ingress with default configuration.
func New() *Ingress {
	return &Ingress{
		cfg:          DefaultConfig(),
		registry:     newOpenAPIRegistry(),
		specsByRoute: make(map[string]*api.OperationSpec),
		guards:       make(map[string]*routeGuard),
	}
}

func (m *Ingress) config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Ingress) routes() chi.Router {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inner
}

func (m *Ingress) specByRoute(method, chiPattern string) *api.OperationSpec {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.specsByRoute[method+" "+chiPattern]
}

func (m *Ingress) guardFor(handlerID string) *routeGuard {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.guards[handlerID]
}

// Registry exposes the OpenAPI registry to registering modules.
func (m *Ingress) Registry() api.Registry {
	return m.registry
}

// Init decodes the module configuration.
func (m *Ingress) Init(ctx context.Context, mctx *modctx.Context) error {
	cfg := DefaultConfig()
	if err := mctx.Config(&cfg); err != nil {
		return err
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	m.wrapper = lifecycle.NewWrapper(ModuleName, m.serve,
		lifecycle.WithReadyGate(),
		lifecycle.WithStopTimeout(cfg.StopTimeout),
	)

	logger.Log.Info("API ingress initialized", "listen_addr", cfg.ListenAddr)
	return nil
}

// RestPrepare attaches the health endpoints to the empty router.
func (m *Ingress) RestPrepare(ctx context.Context, mctx *modctx.Context, r chi.Router) (chi.Router, error) {
	health := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
	r.Get("/health", health)
	r.Get("/healthz", health)
	return r, nil
}

// RestFinalize attaches /openapi.json, the docs page and the metrics
// endpoint, snapshots the route table for per-route middleware lookup, builds
// the per-route guards and wraps everything in the ingress middleware stack.
// The router is persisted, not served.
func (m *Ingress) RestFinalize(ctx context.Context, mctx *modctx.Context, r chi.Router) (chi.Router, error) {
	cfg := m.config()

	if cfg.DocsEnabled {
		r.Get("/openapi.json", m.serveOpenAPI)
		r.Get("/docs", m.serveDocs)
	}
	if mm := metrics.Default(); mm != nil {
		r.Method(http.MethodGet, "/metrics", mm.Handler())
	}

	specsByRoute := make(map[string]*api.OperationSpec)
	guards := make(map[string]*routeGuard)
	for _, spec := range m.registry.Operations() {
		specsByRoute[spec.Method+" "+api.ChiPath(spec.Path)] = spec

		if rl := spec.RateLimit; rl != nil {
			guards[spec.HandlerID] = &routeGuard{
				limiter: ratelimit.NewMemoryLimiter(&ratelimit.Config{
					RPS:   float64(rl.RPS),
					Burst: rl.Burst,
				}),
				inFlight:  ratelimit.NewSemaphore(rl.InFlight),
				handlerID: spec.HandlerID,
			}
		}
	}

	final := m.buildMiddlewareStack(r, cfg)

	m.mu.Lock()
	m.inner = r
	m.specsByRoute = specsByRoute
	m.guards = guards
	m.final = final
	m.mu.Unlock()

	logger.Log.Info("REST router finalized",
		"operations", len(specsByRoute),
		"docs_enabled", cfg.DocsEnabled,
	)
	return r, nil
}

// buildMiddlewareStack layers the normative ingress stack, outermost first:
// request-id -> tracing -> HTTP metrics (only when metrics are initialised)
// -> timeout -> body limit -> CORS (only when enabled) -> operation
// resolution -> MIME validation -> rate limit -> error mapping -> auth.
func (m *Ingress) buildMiddlewareStack(routes http.Handler, cfg Config) http.Handler {
	stack := []func(http.Handler) http.Handler{
		requestIDMiddleware,
		telemetry.HTTPMiddleware(RequestIDHeader),
	}

	if mm := metrics.Default(); mm != nil {
		stack = append(stack, mm.HTTPMiddleware)
	}

	stack = append(stack,
		timeoutMiddleware(cfg.RequestTimeout),
		bodyLimitMiddleware(cfg.MaxBodyBytes),
	)

	if cfg.CORS.Enabled {
		stack = append(stack, cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		}))
	}

	stack = append(stack,
		m.resolveOperationMiddleware,
		mimeValidationMiddleware,
		m.rateLimitMiddleware,
		recoverMiddleware,
		m.authMiddleware,
	)

	h := routes
	for i := len(stack) - 1; i >= 0; i-- {
		h = stack[i](h)
	}
	return h
}

// serveOpenAPI renders the OpenAPI document with a no-store cache policy.
func (m *Ingress) serveOpenAPI(w http.ResponseWriter, r *http.Request) {
	cfg := m.config()
	doc := m.registry.BuildDocument(cfg.Title, cfg.Version)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		logger.Log.Error("Failed to encode OpenAPI document", "error", err)
	}
}

// Handler returns the final middleware-wrapped handler (nil before finalize).
func (m *Ingress) Handler() http.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.final
}

// Start serves the finalized router; it returns once the listener is bound.
func (m *Ingress) Start(ctx context.Context) error {
	if m.wrapper == nil {
		return errors.New("api_ingress started before init")
	}
	return m.wrapper.Start(ctx)
}

// Stop shuts the server down within the configured stop timeout.
func (m *Ingress) Stop(ctx context.Context) error {
	if m.wrapper == nil {
		return nil
	}
	return m.wrapper.Stop(ctx)
}

// serve is the lifecycle runnable: bind, signal readiness, serve until the
// cancellation fires, then drain.
func (m *Ingress) serve(ctx context.Context, ready *lifecycle.ReadySignal) error {
	handler := m.Handler()
	if handler == nil {
		return errors.New("api_ingress has no finalized router; was the REST phase skipped?")
	}

	cfg := m.config()
	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}

	logger.Log.Info("HTTP server listening", "addr", lis.Addr().String())
	ready.Notify()

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
