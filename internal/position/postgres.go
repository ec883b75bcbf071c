// internal/position/postgres.go
package position

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rovshanmuradov/yieldscope/internal/domain"
)

// Schema creates the read model this store expects. Amounts are NUMERIC base units.
const Schema = `CREATE TABLE IF NOT EXISTS positions (
	owner      TEXT        NOT NULL,
	protocol   TEXT        NOT NULL,
	chain      TEXT        NOT NULL,
	asset      TEXT        NOT NULL,
	amount     NUMERIC     NOT NULL,
	apy        DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (owner, protocol, chain, asset)
)`

// PostgresStore reads positions from PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate positions: %w", err)
	}
	return nil
}

// Lookup implements Store. Rows with unknown chains or assets are skipped.
func (s *PostgresStore) Lookup(ctx context.Context, owner string) ([]domain.Position, error) {
	key := NormalizeOwner(owner)
	rows, err := s.pool.Query(ctx,
		`SELECT protocol, chain, asset, amount::TEXT, apy, updated_at
		 FROM positions WHERE owner = $1
		 ORDER BY protocol, chain, asset`, key)
	if err != nil {
		return nil, fmt.Errorf("lookup positions for %s: %w", key, err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var (
			p      domain.Position
			amount string
		)
		if err := rows.Scan(&p.Protocol, &p.Chain, &p.Asset, &amount, &p.APY, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		if !p.Chain.Valid() || !p.Asset.Valid() {
			continue
		}
		value, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, &domain.MalformedDataError{Field: "amount", Value: amount, Err: fmt.Errorf("not an integer")}
		}
		p.Amount = value
		p.Owner = key
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
