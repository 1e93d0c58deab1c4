package modctx

import (
	"context"
	"fmt"

	"github.com/modcrafter77/hyperspot/pkg/config"
	"github.com/modcrafter77/hyperspot/pkg/db"
	"github.com/modcrafter77/hyperspot/pkg/modkit/client"
)

// Builder constructs module contexts just-in-time before each capability call.
// Database handle resolution is delegated to the db.Manager, which memoizes
// by module name, so calling ForModule once per phase is cheap.
type Builder struct {
	provider config.Provider
	hub      *client.Hub
	cancel   context.Context
	dbm      *db.Manager
}

// NewBuilder creates a context builder. dbm may be nil when the process runs
// without database integration.
func NewBuilder(provider config.Provider, hub *client.Hub, cancel context.Context, dbm *db.Manager) *Builder {
	return &Builder{
		provider: provider,
		hub:      hub,
		cancel:   cancel,
		dbm:      dbm,
	}
}

// ForModule builds the context for one module, resolving its database handle
// from the declared options when a manager is available.
func (b *Builder) ForModule(ctx context.Context, name string) (*Context, error) {
	var raw map[string]any
	if b.provider != nil {
		raw = b.provider.ModuleConfig(name)
	}

	var handle *db.Handle
	if b.dbm != nil {
		opts, err := decodeDBOptions(name, raw)
		if err != nil {
			return nil, err
		}
		if opts != nil {
			handle, err = b.dbm.HandleFor(ctx, name, opts)
			if err != nil {
				return nil, err
			}
		}
	}

	return New(name, raw, b.hub, handle, b.cancel), nil
}

// decodeDBOptions extracts the "database" key of a module section. A missing
// key means the module runs without a database.
func decodeDBOptions(module string, raw map[string]any) (*db.Options, error) {
	if raw == nil {
		return nil, nil
	}
	section, ok := raw["database"]
	if !ok || section == nil {
		return nil, nil
	}

	sub, ok := section.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("module %q: database section must be a map", module)
	}

	probe := New(module, sub, nil, nil, nil)
	var opts db.Options
	if err := probe.Config(&opts); err != nil {
		return nil, err
	}
	return &opts, nil
}
