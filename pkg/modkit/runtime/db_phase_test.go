package runtime

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modcrafter77/hyperspot/pkg/config"
	"github.com/modcrafter77/hyperspot/pkg/db"
	"github.com/modcrafter77/hyperspot/pkg/modkit/client"
	"github.com/modcrafter77/hyperspot/pkg/modkit/modctx"
	"github.com/modcrafter77/hyperspot/pkg/modkit/registry"
)

var itemsMigrations = fstest.MapFS{
	"00001_create_items.sql": &fstest.MapFile{
		Data: []byte(`-- +goose Up
CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL);

-- +goose Down
DROP TABLE items;
`),
	},
}

// migratingModule runs its goose migrations during the migrate phase.
type migratingModule struct {
	migrated []string
}

func (m *migratingModule) Init(ctx context.Context, mctx *modctx.Context) error { return nil }

func (m *migratingModule) Migrate(ctx context.Context, handle *db.Handle) error {
	if err := db.NewMigrator(handle, itemsMigrations, ".").Up(ctx); err != nil {
		return err
	}
	m.migrated = append(m.migrated, "done")
	return nil
}

func TestDBPhaseMigratesOnlyConfiguredModules(t *testing.T) {
	withDB := &migratingModule{}
	withoutDB := &migratingModule{}

	b := registry.NewBuilder()
	b.Register(registry.Registration{Name: "with_db", Core: withDB})
	b.Register(registry.Registration{Name: "without_db", Core: withoutDB})
	reg, err := b.Build()
	require.NoError(t, err)

	provider := config.MapProvider{
		"with_db": {
			"database": map[string]any{"file": "with_db.sqlite"},
		},
		// without_db has no database section: its migrate hook is skipped.
		"without_db": {},
	}

	dbm := db.NewManager(config.DatabaseConfig{}, t.TempDir())
	defer dbm.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host := NewHost(reg, provider, dbm, client.NewHub(), ctx)
	require.NoError(t, host.RunDBPhase(context.Background()))

	assert.Len(t, withDB.migrated, 1, "configured module migrates")
	assert.Empty(t, withoutDB.migrated, "unconfigured module is skipped, not fatal")

	// Init may assume the migrated schema.
	handle, err := dbm.HandleFor(ctx, "with_db", &db.Options{File: "with_db.sqlite"})
	require.NoError(t, err)

	_, err = handle.SQL().ExecContext(ctx, `INSERT INTO items (name) VALUES (?)`, "first")
	require.NoError(t, err)

	var count int
	require.NoError(t, handle.SQL().QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count))
	assert.Equal(t, 1, count)
}
