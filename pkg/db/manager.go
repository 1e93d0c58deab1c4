package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/modcrafter77/hyperspot/pkg/config"
	"github.com/modcrafter77/hyperspot/pkg/logger"
)

// Handle is a resolved database connection owned by one module.
type Handle struct {
	Dialect Dialect

	pool  *pgxpool.Pool // postgres only
	sqldb *sql.DB
}

// SQL returns the database/sql view of the handle (used by goose and by
// modules that prefer the standard interface).
func (h *Handle) SQL() *sql.DB {
	return h.sqldb
}

// Pool returns the underlying pgx pool, or nil for non-postgres handles.
func (h *Handle) Pool() *pgxpool.Pool {
	return h.pool
}

// Ping verifies the connection is alive.
func (h *Handle) Ping(ctx context.Context) error {
	if h.pool != nil {
		return h.pool.Ping(ctx)
	}
	return h.sqldb.PingContext(ctx)
}

// Close releases the handle's resources.
func (h *Handle) Close() {
	if h.sqldb != nil {
		_ = h.sqldb.Close()
	}
	if h.pool != nil {
		h.pool.Close()
	}
}

// Manager resolves and caches per-module database handles. Resolution is
// memoized by module name; the cache is dropped only at Close.
type Manager struct {
	servers map[string]config.DBServerConfig
	homeDir string

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewManager creates a manager over the global database section.
func NewManager(dbCfg config.DatabaseConfig, homeDir string) *Manager {
	return &Manager{
		servers: dbCfg.Servers,
		homeDir: homeDir,
		handles: make(map[string]*Handle),
	}
}

// HandleFor resolves (and memoizes) the handle for a module. A module with no
// database options returns (nil, nil).
func (m *Manager) HandleFor(ctx context.Context, module string, opts *Options) (*Handle, error) {
	m.mu.Lock()
	if h, ok := m.handles[module]; ok {
		m.mu.Unlock()
		return h, nil
	}
	m.mu.Unlock()

	resolved, err := ResolveDSN(module, opts, m.servers, m.homeDir)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, nil
	}

	h, err := open(ctx, module, resolved)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.handles[module]; ok {
		// Lost the race; keep the first handle.
		h.Close()
		return existing, nil
	}
	m.handles[module] = h
	return h, nil
}

// Close tears down every cached handle.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for module, h := range m.handles {
		h.Close()
		delete(m.handles, module)
	}
}

func open(ctx context.Context, module string, resolved *ResolvedDSN) (*Handle, error) {
	switch resolved.Dialect {
	case DialectPostgres:
		return openPostgres(ctx, module, resolved)
	case DialectSQLite:
		return openSQLite(ctx, module, resolved)
	}
	return nil, &InvalidDSNError{Module: module, Reason: fmt.Sprintf("unsupported dialect %q", resolved.Dialect)}
}

func openPostgres(ctx context.Context, module string, resolved *ResolvedDSN) (*Handle, error) {
	poolConfig, err := pgxpool.ParseConfig(resolved.DSN)
	if err != nil {
		return nil, &InvalidDSNError{Module: module, Reason: err.Error()}
	}

	if resolved.Pool.MaxConns > 0 {
		poolConfig.MaxConns = int32(resolved.Pool.MaxConns)
	}
	timeout := resolved.Pool.AcquireTimeout
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	poolConfig.ConnConfig.ConnectTimeout = timeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool for module %q: %w", module, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database for module %q: %w", module, err)
	}

	logger.Log.Info("Connected to PostgreSQL",
		"module", module,
		"dsn", Redact(resolved.DSN),
	)

	return &Handle{
		Dialect: DialectPostgres,
		pool:    pool,
		sqldb:   stdlib.OpenDBFromPool(pool),
	}, nil
}

func openSQLite(ctx context.Context, module string, resolved *ResolvedDSN) (*Handle, error) {
	if dir := filepath.Dir(resolved.DSN); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory for module %q: %w", module, err)
		}
	}

	dsn := resolved.DSN + "?" + url.Values{"_pragma": {"busy_timeout(5000)"}}.Encode()
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database for module %q: %w", module, err)
	}

	if resolved.Pool.MaxConns > 0 {
		sqldb.SetMaxOpenConns(resolved.Pool.MaxConns)
	} else {
		// modernc sqlite is happiest with a single writer.
		sqldb.SetMaxOpenConns(1)
	}

	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("failed to ping sqlite database for module %q: %w", module, err)
	}

	logger.Log.Info("Opened SQLite database", "module", module, "path", resolved.DSN)

	return &Handle{
		Dialect: DialectSQLite,
		sqldb:   sqldb,
	}, nil
}
