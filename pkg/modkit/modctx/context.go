// Package modctx builds the per-module view of the runtime: config section,
// resolved database handle, client hub and the root cancellation context.
package modctx

import (
	"context"
	"errors"
	"fmt"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"

	"github.com/modcrafter77/hyperspot/pkg/db"
	"github.com/modcrafter77/hyperspot/pkg/modkit/client"
)

// ErrNoDatabase is returned by DBRequired for modules without a resolved handle.
var ErrNoDatabase = errors.New("module has no database configured")

// Context is the per-module view handed to every capability hook. It is cheap
// to copy and must not outlive the runtime.
type Context struct {
	name   string
	raw    map[string]any
	hub    *client.Hub
	dbh    *db.Handle
	cancel context.Context
}

// New assembles a module context directly; the runtime normally goes through
// a Builder instead.
func New(name string, raw map[string]any, hub *client.Hub, dbh *db.Handle, cancel context.Context) *Context {
	if cancel == nil {
		cancel = context.Background()
	}
	return &Context{name: name, raw: raw, hub: hub, dbh: dbh, cancel: cancel}
}

// Name returns the module name.
func (c *Context) Name() string { return c.name }

// Raw returns the module's raw config map; nil when the module has no section.
func (c *Context) Raw() map[string]any { return c.raw }

// Config decodes the module's raw config section into out, honoring koanf
// struct tags.
func (c *Context) Config(out any) error {
	k := koanf.New(".")
	if c.raw != nil {
		if err := k.Load(confmap.Provider(c.raw, "."), nil); err != nil {
			return fmt.Errorf("failed to load config for module %q: %w", c.name, err)
		}
	}
	if err := k.Unmarshal("", out); err != nil {
		return fmt.Errorf("failed to decode config for module %q: %w", c.name, err)
	}
	return nil
}

// Hub returns the shared client hub.
func (c *Context) Hub() *client.Hub { return c.hub }

// DB returns the module's database handle, or nil when none is configured.
func (c *Context) DB() *db.Handle { return c.dbh }

// DBRequired returns the module's database handle or an error when absent.
func (c *Context) DBRequired() (*db.Handle, error) {
	if c.dbh == nil {
		return nil, fmt.Errorf("module %q: %w", c.name, ErrNoDatabase)
	}
	return c.dbh, nil
}

// Cancel returns the root cancellation context of the runtime.
func (c *Context) Cancel() context.Context { return c.cancel }
