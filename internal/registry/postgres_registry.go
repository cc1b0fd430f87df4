package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ConnectionStore abstracts DB queries for testability.
type ConnectionStore interface {
	LookupConnection(ctx context.Context, name string) (*connectionRow, error)
	ListConnections(ctx context.Context) ([]connectionRow, error)
}

type connectionRow struct {
	Name          string
	Tenant        string
	ExpectedEmail sql.NullString
	Description   sql.NullString
}

// sqlConnectionStore is the real implementation using *sql.DB.
type sqlConnectionStore struct {
	db *sql.DB
}

func (s *sqlConnectionStore) LookupConnection(ctx context.Context, name string) (*connectionRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, tenant, expected_email, description
		FROM connections
		WHERE name = $1
	`, name)

	var r connectionRow
	if err := row.Scan(&r.Name, &r.Tenant, &r.ExpectedEmail, &r.Description); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *sqlConnectionStore) ListConnections(ctx context.Context) ([]connectionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, tenant, expected_email, description
		FROM connections
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []connectionRow
	for rows.Next() {
		var r connectionRow
		if err := rows.Scan(&r.Name, &r.Tenant, &r.ExpectedEmail, &r.Description); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PostgresRegistry reads connections from the connections table, read-only.
type PostgresRegistry struct {
	store  ConnectionStore
	cache  *ConnectionCache
	logger *zap.Logger
}

// PostgresRegistryConfig configures the PostgresRegistry.
type PostgresRegistryConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// missTTL bounds how long an unregistered name is answered from cache.
const missTTL = 5 * time.Second

// NewPostgresRegistry creates a new PostgresRegistry.
func NewPostgresRegistry(cfg PostgresRegistryConfig) *PostgresRegistry {
	return newPostgresRegistryWithStore(&sqlConnectionStore{db: cfg.DB}, cfg.CacheTTL, cfg.Logger)
}

// newPostgresRegistryWithStore creates a registry with a custom store (for testing).
func newPostgresRegistryWithStore(store ConnectionStore, cacheTTL time.Duration, logger *zap.Logger) *PostgresRegistry {
	if cacheTTL == 0 {
		cacheTTL = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresRegistry{
		store:  store,
		cache:  NewConnectionCache(cacheTTL, missTTL),
		logger: logger,
	}
}

func (r *PostgresRegistry) GetConnection(ctx context.Context, name string) (*Connection, error) {
	cacheResult := r.cache.Get(name)
	if cacheResult.Hit {
		if cacheResult.NeedsRefresh {
			go r.refreshInBackground(name)
		}
		return cacheResult.Connection, nil
	}

	// Cache miss, fetch from DB
	conn, err := r.fetchFromDB(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.cache.Set(name, nil)
			return nil, nil
		}
		return nil, fmt.Errorf("GetConnection: %w", err)
	}

	r.cache.Set(name, conn)
	return conn, nil
}

// ListConnections always reads the table; listing is an operator action, not a hot path.
func (r *PostgresRegistry) ListConnections(ctx context.Context) ([]Connection, error) {
	rows, err := r.store.ListConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListConnections: %w", err)
	}
	out := make([]Connection, 0, len(rows))
	for i := range rows {
		out = append(out, *parseConnectionRow(&rows[i]))
	}
	return out, nil
}

func (r *PostgresRegistry) fetchFromDB(ctx context.Context, name string) (*Connection, error) {
	row, err := r.store.LookupConnection(ctx, name)
	if err != nil {
		return nil, err
	}
	return parseConnectionRow(row), nil
}

func (r *PostgresRegistry) refreshInBackground(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := r.fetchFromDB(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.cache.Set(name, nil)
			return
		}
		// Evict so the next lookup goes to the table and reports the error
		// instead of serving this entry with no refresh pending.
		r.cache.Delete(name)
		r.logger.Warn("background connection registry refresh failed",
			zap.String("connection", name),
			zap.Error(err),
		)
		return
	}
	r.cache.Set(name, conn)
}

func parseConnectionRow(row *connectionRow) *Connection {
	c := &Connection{
		Name:   row.Name,
		Tenant: row.Tenant,
	}
	if row.ExpectedEmail.Valid {
		c.ExpectedEmail = row.ExpectedEmail.String
	}
	if row.Description.Valid {
		c.Description = row.Description.String
	}
	return c
}
