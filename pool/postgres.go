package pool

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/tenants"
)

// DefaultPostgresUsageQueries count usage in a tenant database laid out with
// one table per resource.
var DefaultPostgresUsageQueries = map[tenants.ResourceKind]string{
	tenants.ResourceUsers:     "SELECT count(*) FROM users",
	tenants.ResourceVoters:    "SELECT count(*) FROM voters",
	tenants.ResourceElections: "SELECT count(*) FROM elections",
	tenants.ResourceDataMB:    "SELECT pg_database_size(current_database()) / (1024 * 1024)",
}

// PgxConnector opens a pgxpool per tenant database.
type PgxConnector struct {
	MaxConns     int32
	UsageQueries map[tenants.ResourceKind]string
}

var _ Connector = (*PgxConnector)(nil)

func (c *PgxConnector) Connect(ctx context.Context, conn tenants.ConnectionDescriptor) (Store, error) {
	if err := conn.Validate(); err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(conn.DSN())
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "parse postgres dsn: %v", err)
	}
	if c.MaxConns > 0 {
		cfg.MaxConns = c.MaxConns
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping pool: %w", err)
	}
	queries := c.UsageQueries
	if queries == nil {
		queries = DefaultPostgresUsageQueries
	}
	return &PgxStore{pool: p, queries: queries}, nil
}

// PgxStore is a tenant Store backed by pgxpool.
type PgxStore struct {
	pool    *pgxpool.Pool
	queries map[tenants.ResourceKind]string
}

func (s *PgxStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PgxStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PgxStore) CountUsage(ctx context.Context, kind tenants.ResourceKind) (int64, error) {
	query, ok := s.queries[kind]
	if !ok {
		return 0, errors.Wrapf(errors.ErrUnsupported, "usage of %s is not stored in the tenant database", kind)
	}
	var n int64
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// Close waits for acquired connections to be released, then closes the pool.
func (s *PgxStore) Close() error {
	s.pool.Close()
	return nil
}
