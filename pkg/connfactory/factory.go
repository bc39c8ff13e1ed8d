// Package connfactory turns resolved database identifiers into connections.
// It owns one lazily created pool per configured database: PostgreSQL via
// pgxpool, SQL Server via database/sql with the go-mssqldb driver.
package connfactory

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/stratumhq/dbflow/pkg/apperrors"
	"github.com/stratumhq/dbflow/pkg/config"
	"github.com/stratumhq/dbflow/pkg/dbcontext"
	"github.com/stratumhq/dbflow/pkg/logging"
	"github.com/stratumhq/dbflow/pkg/retry"
	"github.com/stratumhq/dbflow/pkg/routing"
)

// FactoryConfig wires a Factory.
type FactoryConfig struct {
	// Databases are the connection targets, keyed by their ID.
	Databases []config.DatabaseConfig

	// Ambient, when set, has the flow's record marked connection-active
	// after a successful acquire.
	Ambient *dbcontext.Ambient

	// Retry controls transient-failure handling when opening pools.
	// Nil uses retry.DefaultConfig.
	Retry *retry.Config

	// Logger may be nil to disable logging.
	Logger *zap.Logger
}

// Factory hands out connections for resolved database identifiers. Pools
// are created on first use and cached for the factory's lifetime.
type Factory struct {
	mu        sync.RWMutex
	databases map[routing.DatabaseID]config.DatabaseConfig
	pgPools   map[routing.DatabaseID]*pgxpool.Pool
	sqlDBs    map[routing.DatabaseID]*sql.DB

	ambient  *dbcontext.Ambient
	retryCfg *retry.Config
	logger   *zap.Logger
}

// New creates a Factory for the given databases.
func New(cfg FactoryConfig) *Factory {
	f := &Factory{
		databases: make(map[routing.DatabaseID]config.DatabaseConfig, len(cfg.Databases)),
		pgPools:   make(map[routing.DatabaseID]*pgxpool.Pool),
		sqlDBs:    make(map[routing.DatabaseID]*sql.DB),
		ambient:   cfg.Ambient,
		retryCfg:  cfg.Retry,
		logger:    cfg.Logger,
	}
	for _, db := range cfg.Databases {
		f.databases[routing.DatabaseID(db.ID)] = db
	}
	return f
}

// Register adds or replaces a connection target. Existing pools for the ID
// keep their old settings until the factory is closed.
func (f *Factory) Register(db config.DatabaseConfig) {
	f.mu.Lock()
	f.databases[routing.DatabaseID(db.ID)] = db
	f.mu.Unlock()
}

// databaseConfig looks up the target for id.
func (f *Factory) databaseConfig(id routing.DatabaseID) (config.DatabaseConfig, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	db, ok := f.databases[id]
	if !ok {
		return config.DatabaseConfig{}, fmt.Errorf("%w: %q", apperrors.ErrUnknownDatabase, id)
	}
	return db, nil
}

// ConnectionString builds the driver-specific DSN for id. The result
// contains credentials; sanitize before logging.
func (f *Factory) ConnectionString(id routing.DatabaseID) (string, error) {
	db, err := f.databaseConfig(id)
	if err != nil {
		return "", err
	}
	switch db.Driver {
	case config.DriverPostgres:
		return postgresDSN(db), nil
	case config.DriverSQLServer:
		return sqlServerDSN(db), nil
	default:
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownDriver, db.Driver)
	}
}

// PoolConfig builds the pgxpool configuration for a PostgreSQL target.
func (f *Factory) PoolConfig(id routing.DatabaseID) (*pgxpool.Config, error) {
	db, err := f.databaseConfig(id)
	if err != nil {
		return nil, err
	}
	if db.Driver != config.DriverPostgres {
		return nil, fmt.Errorf("%w: %q is not postgres", apperrors.ErrUnknownDriver, id)
	}

	poolCfg, err := pgxpool.ParseConfig(postgresDSN(db))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config for %q: %w", id, err)
	}
	if db.MaxConns > 0 {
		poolCfg.MaxConns = db.MaxConns
	}
	if db.MinConns > 0 {
		poolCfg.MinConns = db.MinConns
	}
	return poolCfg, nil
}

// AcquirePool returns the PostgreSQL pool for id, creating and verifying it
// on first use with retry on transient failures.
func (f *Factory) AcquirePool(ctx context.Context, id routing.DatabaseID) (*pgxpool.Pool, error) {
	f.mu.RLock()
	pool, ok := f.pgPools[id]
	f.mu.RUnlock()
	if ok {
		f.markActive(ctx)
		return pool, nil
	}

	poolCfg, err := f.PoolConfig(id)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if pool, ok := f.pgPools[id]; ok {
		f.markActive(ctx)
		return pool, nil
	}

	pool, err = retry.DoWithResult(ctx, f.retryCfg, func() (*pgxpool.Pool, error) {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		if f.logger != nil {
			f.logger.Error("failed to open postgres pool",
				zap.String("database", string(id)),
				zap.String("error", logging.SanitizeError(err)))
		}
		return nil, fmt.Errorf("failed to open pool for %q: %w", id, err)
	}

	f.pgPools[id] = pool
	f.markActive(ctx)
	if f.logger != nil {
		f.logger.Info("opened postgres pool",
			zap.String("database", string(id)),
			zap.String("dsn", logging.SanitizeConnectionString(postgresDSN(f.databases[id]))))
	}
	return pool, nil
}

// OpenSQLServer returns the SQL Server handle for id, creating it on first
// use. database/sql defers dialing, so this does no I/O until first query;
// PingContext verifies reachability with retry.
func (f *Factory) OpenSQLServer(ctx context.Context, id routing.DatabaseID) (*sql.DB, error) {
	f.mu.RLock()
	db, ok := f.sqlDBs[id]
	f.mu.RUnlock()
	if ok {
		f.markActive(ctx)
		return db, nil
	}

	dbCfg, err := f.databaseConfig(id)
	if err != nil {
		return nil, err
	}
	if dbCfg.Driver != config.DriverSQLServer {
		return nil, fmt.Errorf("%w: %q is not sqlserver", apperrors.ErrUnknownDriver, id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if db, ok := f.sqlDBs[id]; ok {
		f.markActive(ctx)
		return db, nil
	}

	dsn := sqlServerDSN(dbCfg)
	db, err = sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlserver handle for %q: %w", id, err)
	}
	if dbCfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(dbCfg.MaxConns))
	}
	if err := retry.DoIfRetryable(ctx, f.retryCfg, func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		if f.logger != nil {
			f.logger.Error("failed to reach sqlserver",
				zap.String("database", string(id)),
				zap.String("error", logging.SanitizeError(err)))
		}
		return nil, fmt.Errorf("failed to reach %q: %w", id, err)
	}

	f.sqlDBs[id] = db
	f.markActive(ctx)
	if f.logger != nil {
		f.logger.Info("opened sqlserver handle",
			zap.String("database", string(id)),
			zap.String("dsn", logging.SanitizeConnectionString(dsn)))
	}
	return db, nil
}

// markActive records on the flow's ambient record that a connection is live.
func (f *Factory) markActive(ctx context.Context) {
	if f.ambient != nil {
		f.ambient.Current(ctx).SetConnectionActive(true)
	}
}

// Close shuts down every pool and handle the factory created.
func (f *Factory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, pool := range f.pgPools {
		pool.Close()
		delete(f.pgPools, id)
	}
	for id, db := range f.sqlDBs {
		_ = db.Close()
		delete(f.sqlDBs, id)
	}
	if f.logger != nil {
		f.logger.Info("connection factory closed")
	}
}
