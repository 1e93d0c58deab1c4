// Package runtime owns the host runtime: it drives every module through the
// lifecycle phases and wires the collaborating primitives together.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/modcrafter77/hyperspot/pkg/config"
	"github.com/modcrafter77/hyperspot/pkg/db"
	"github.com/modcrafter77/hyperspot/pkg/logger"
	"github.com/modcrafter77/hyperspot/pkg/metrics"
	"github.com/modcrafter77/hyperspot/pkg/modkit/client"
	"github.com/modcrafter77/hyperspot/pkg/modkit/contracts"
	"github.com/modcrafter77/hyperspot/pkg/modkit/directory"
	"github.com/modcrafter77/hyperspot/pkg/modkit/modctx"
	"github.com/modcrafter77/hyperspot/pkg/modkit/registry"
)

// Phase names used in PhaseError.
const (
	PhaseSystemWire   = "system_wire"
	PhaseDBMigrate    = "db_migrate"
	PhaseInit         = "init"
	PhaseRestCompose  = "rest_compose"
	PhaseRestPrepare  = "rest_prepare"
	PhaseRestRegister = "rest_register"
	PhaseRestFinalize = "rest_finalize"
	PhaseGrpcRegister = "grpc_register"
	PhaseStart        = "start"
	PhaseStop         = "stop"
)

// PhaseError wraps a failure of one lifecycle phase with the offending module.
type PhaseError struct {
	Phase  string
	Module string
	Err    error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s failed for module %q: %v", e.Phase, e.Module, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// phaseTimer records the duration of one phase when metrics are enabled.
func phaseTimer(phase string) func() {
	m := metrics.Default()
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() { m.ObservePhase(phase, time.Since(start)) }
}

// Host owns the registry and all runtime primitives and executes the phase
// engine: system wire -> DB migrate -> init -> REST compose -> gRPC register
// -> start -> wait -> stop.
type Host struct {
	registry   *registry.Registry
	ctxBuilder *modctx.Builder
	manager    *directory.Manager
	installers *contracts.InstallerStore
	hub        *client.Hub
	cancel     context.Context

	// router is the composed REST router, stored after the REST phase.
	router chi.Router

	// started records the start order for exact-reverse stop.
	started []*registry.Entry
}

// NewHost assembles a host runtime. dbm may be nil for processes without
// database integration.
func NewHost(reg *registry.Registry, provider config.Provider, dbm *db.Manager, hub *client.Hub, cancel context.Context) *Host {
	return &Host{
		registry:   reg,
		ctxBuilder: modctx.NewBuilder(provider, hub, cancel, dbm),
		manager:    directory.NewManager(),
		installers: contracts.NewInstallerStore(),
		hub:        hub,
		cancel:     cancel,
	}
}

// Manager exposes the service directory (used by runner helpers and tests).
func (h *Host) Manager() *directory.Manager { return h.manager }

// Hub exposes the client hub.
func (h *Host) Hub() *client.Hub { return h.hub }

// Router returns the composed REST router after the REST phase, or nil.
func (h *Host) Router() chi.Router { return h.router }

// WireSystem hands the runtime internals to every system module whose core
// implements the system hook. Runs before any other phase.
func (h *Host) WireSystem() error {
	logger.Log.Info("Phase: system_wire")
	defer phaseTimer(PhaseSystemWire)()

	sys := &contracts.SystemContext{
		Manager:        h.manager,
		GrpcInstallers: h.installers,
	}

	for _, entry := range h.registry.Modules() {
		if !entry.IsSystem {
			continue
		}
		if sysMod, ok := entry.Core.(contracts.SystemModule); ok {
			logger.Log.Debug("Wiring system context", "module", entry.Name)
			sysMod.WireSystem(sys)
		}
	}

	return nil
}

// RunDBPhase runs migrations for every module with the db capability, system
// modules first. A declared capability with no configured database is logged
// and skipped.
func (h *Host) RunDBPhase(ctx context.Context) error {
	logger.Log.Info("Phase: db_migrate")
	defer phaseTimer(PhaseDBMigrate)()

	for _, entry := range h.registry.ModulesBySystemPriority() {
		if entry.DB == nil {
			continue
		}

		mctx, err := h.ctxBuilder.ForModule(ctx, entry.Name)
		if err != nil {
			return &PhaseError{Phase: PhaseDBMigrate, Module: entry.Name, Err: err}
		}

		handle := mctx.DB()
		if handle == nil {
			logger.Log.Debug("Module declares db capability but has no database configured",
				"module", entry.Name)
			continue
		}

		logger.Log.Debug("Running DB migration", "module", entry.Name)
		if err := entry.DB.Migrate(ctx, handle); err != nil {
			return &PhaseError{Phase: PhaseDBMigrate, Module: entry.Name, Err: err}
		}
	}

	return nil
}

// RunInitPhase initializes every module in order, system modules first.
func (h *Host) RunInitPhase(ctx context.Context) error {
	logger.Log.Info("Phase: init")
	defer phaseTimer(PhaseInit)()

	for _, entry := range h.registry.ModulesBySystemPriority() {
		mctx, err := h.ctxBuilder.ForModule(ctx, entry.Name)
		if err != nil {
			return &PhaseError{Phase: PhaseInit, Module: entry.Name, Err: err}
		}
		if err := entry.Core.Init(ctx, mctx); err != nil {
			return &PhaseError{Phase: PhaseInit, Module: entry.Name, Err: err}
		}
	}

	return nil
}

// RunRestPhase composes the router against the single REST host:
// prepare, then one register call per rest module in order, then finalize.
// The router is stored, not served.
func (h *Host) RunRestPhase(ctx context.Context) error {
	logger.Log.Info("Phase: rest_compose")
	defer phaseTimer(PhaseRestCompose)()

	host, hasHost := h.registry.RestHost()
	if !hasHost {
		if h.registry.HasRest() {
			return registry.ErrRestRequiresHost
		}
		return nil
	}

	hostCtx, err := h.ctxBuilder.ForModule(ctx, host.Name)
	if err != nil {
		return &PhaseError{Phase: PhaseRestPrepare, Module: host.Name, Err: err}
	}

	openapi := host.RestHost.Registry()

	router := chi.NewRouter()
	router, err = host.RestHost.RestPrepare(ctx, hostCtx, router)
	if err != nil {
		return &PhaseError{Phase: PhaseRestPrepare, Module: host.Name, Err: err}
	}

	for _, entry := range h.registry.Modules() {
		if entry.Rest == nil {
			continue
		}
		mctx, err := h.ctxBuilder.ForModule(ctx, entry.Name)
		if err != nil {
			return &PhaseError{Phase: PhaseRestRegister, Module: entry.Name, Err: err}
		}
		router, err = entry.Rest.RegisterRest(ctx, mctx, router, openapi)
		if err != nil {
			return &PhaseError{Phase: PhaseRestRegister, Module: entry.Name, Err: err}
		}
	}

	router, err = host.RestHost.RestFinalize(ctx, hostCtx, router)
	if err != nil {
		return &PhaseError{Phase: PhaseRestFinalize, Module: host.Name, Err: err}
	}

	h.router = router
	return nil
}

// RunGrpcPhase collects installers from every grpc module and pushes them
// into the installer store exactly once. Duplicate service names are fatal.
func (h *Host) RunGrpcPhase(ctx context.Context) error {
	logger.Log.Info("Phase: grpc_register")
	defer phaseTimer(PhaseGrpcRegister)()

	services := h.registry.GrpcServices()
	if h.registry.GrpcHub == "" && len(services) == 0 {
		return nil
	}
	if h.registry.GrpcHub == "" {
		return registry.ErrGrpcRequiresHub
	}

	var all []contracts.GrpcInstaller
	seen := make(map[string]bool)

	for _, entry := range services {
		mctx, err := h.ctxBuilder.ForModule(ctx, entry.Name)
		if err != nil {
			return &PhaseError{Phase: PhaseGrpcRegister, Module: entry.Name, Err: err}
		}

		installers, err := entry.GrpcService.GrpcServices(ctx, mctx)
		if err != nil {
			return &PhaseError{Phase: PhaseGrpcRegister, Module: entry.Name, Err: err}
		}

		for _, installer := range installers {
			if seen[installer.ServiceName] {
				return &PhaseError{
					Phase:  PhaseGrpcRegister,
					Module: entry.Name,
					Err:    fmt.Errorf("duplicate gRPC service name: %s", installer.ServiceName),
				}
			}
			seen[installer.ServiceName] = true
			all = append(all, installer)
		}
	}

	if err := h.installers.Set(all); err != nil {
		return &PhaseError{Phase: PhaseGrpcRegister, Module: h.registry.GrpcHub, Err: err}
	}

	return nil
}

// RunStartPhase starts every stateful module, system modules first, and
// records the order for the reverse stop.
func (h *Host) RunStartPhase(ctx context.Context) error {
	logger.Log.Info("Phase: start")
	defer phaseTimer(PhaseStart)()

	for _, entry := range h.registry.ModulesBySystemPriority() {
		if entry.Stateful == nil {
			continue
		}
		logger.Log.Debug("Starting stateful module",
			"module", entry.Name, "is_system", entry.IsSystem)
		if err := entry.Stateful.Start(h.cancel); err != nil {
			return &PhaseError{Phase: PhaseStart, Module: entry.Name, Err: err}
		}
		h.started = append(h.started, entry)
	}

	return nil
}

// RunStopPhase stops started modules in exact reverse start order. Stop
// errors are logged, never propagated: shutdown must make progress.
func (h *Host) RunStopPhase(ctx context.Context) {
	logger.Log.Info("Phase: stop")
	defer phaseTimer(PhaseStop)()

	for i := len(h.started) - 1; i >= 0; i-- {
		entry := h.started[i]
		if err := entry.Stateful.Stop(ctx); err != nil {
			logger.Log.Warn("Failed to stop module", "module", entry.Name, "error", err)
		}
	}
	h.started = nil
}

// Run executes the full lifecycle and blocks until the cancellation context
// fires, then performs the graceful stop.
func (h *Host) Run(ctx context.Context) error {
	if err := h.WireSystem(); err != nil {
		return err
	}
	if err := h.RunDBPhase(ctx); err != nil {
		return err
	}
	if err := h.RunInitPhase(ctx); err != nil {
		return err
	}
	if err := h.RunRestPhase(ctx); err != nil {
		return err
	}
	if err := h.RunGrpcPhase(ctx); err != nil {
		return err
	}
	if err := h.RunStartPhase(ctx); err != nil {
		return err
	}

	<-h.cancel.Done()

	// Stop runs on a fresh context: the root one is already cancelled.
	h.RunStopPhase(context.Background())
	return nil
}
