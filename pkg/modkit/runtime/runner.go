package runtime

import (
	"context"
	"fmt"

	"github.com/modcrafter77/hyperspot/pkg/config"
	"github.com/modcrafter77/hyperspot/pkg/db"
	"github.com/modcrafter77/hyperspot/pkg/metrics"
	"github.com/modcrafter77/hyperspot/pkg/modkit/client"
	"github.com/modcrafter77/hyperspot/pkg/modkit/registry"
)

// RunOptions configures one runtime execution.
type RunOptions struct {
	// Registrars discover modules: each one mutates the registry builder.
	Registrars []registry.Registrar

	// Provider supplies per-module config sections.
	Provider config.Provider

	// DB is the optional shared database manager; nil disables DB handles.
	DB *db.Manager

	// Shutdown selects the shutdown mode.
	Shutdown ShutdownOptions
}

// Run executes the full cycle:
// discover -> build -> system_wire -> db -> init -> rest -> grpc -> start ->
// wait -> stop.
func Run(opts RunOptions) error {
	cancelCtx, cancel := shutdownContext(opts.Shutdown)
	defer cancel()

	host, err := BuildHost(opts, cancelCtx)
	if err != nil {
		return err
	}

	return host.Run(context.Background())
}

// BuildHost discovers modules via the registrars and assembles a Host bound
// to the given cancellation context. Split out of Run for tests and embedders.
func BuildHost(opts RunOptions, cancelCtx context.Context) (*Host, error) {
	builder := registry.NewBuilder()
	for _, registrar := range opts.Registrars {
		registrar(builder)
	}

	reg, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("module registry build failed: %w", err)
	}

	if m := metrics.Default(); m != nil {
		m.ModulesRegistered.Set(float64(len(reg.Modules())))
	}

	hub := client.NewHub()
	return NewHost(reg, opts.Provider, opts.DB, hub, cancelCtx), nil
}
