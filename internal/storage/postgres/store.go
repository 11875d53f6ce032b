// Package postgres provides Postgres-backed persistence for the harvester.
//
// Purpose:
//
//	This package provides data access for pricing records, per-run metric
//	rows and the single-row lifecycle status. It uses pgxpool for
//	connection pooling; every pricing insert is an independent
//	auto-committed statement so duplicate rows surface per record, never
//	as a batch failure.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Zeebrow/ec2-price-tracker/internal/pricing"
)

// Store provides Postgres-backed persistence for harvest data.
type Store struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

// NewStore creates a store using the provided connection string and takes
// ownership of the pool.
func NewStore(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool, ownsPool: true}, nil
}

// NewStoreFromPool wraps an existing pgx pool.
func NewStoreFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the underlying pool if the store owns it.
func (s *Store) Close() {
	if s.ownsPool && s.pool != nil {
		s.pool.Close()
	}
}

// Pool exposes the underlying pgx pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertOutcome reports what an insert did.
type InsertOutcome int

const (
	// OutcomeStored means a new row was written.
	OutcomeStored InsertOutcome = iota
	// OutcomeDuplicate means a row with the same primary key already exists.
	OutcomeDuplicate
)

// InsertPricingRecord writes one pricing row. A key collision is not an
// error: the row is left untouched and OutcomeDuplicate is returned so the
// caller can tally it. Each call is one auto-committed statement on a
// connection borrowed from the pool for the duration of the call.
func (s *Store) InsertPricingRecord(ctx context.Context, rec pricing.Record) (InsertOutcome, error) {
	query := `
		INSERT INTO ec2_instance_pricing (
			pk, date, region, operating_system, instance_type,
			cost_per_hour, cpu_count, ram_gib,
			storage_description, network_description
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (pk) DO NOTHING
	`

	ct, err := s.pool.Exec(ctx, query,
		rec.PrimaryKey(), rec.Date, rec.Region, rec.OperatingSystem, rec.InstanceType,
		rec.CostPerHour, rec.CPUCount, rec.RAMGiB,
		rec.StorageDescription, rec.NetworkDescription,
	)
	if err != nil {
		return OutcomeStored, fmt.Errorf("insert pricing record: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return OutcomeDuplicate, nil
	}
	return OutcomeStored, nil
}
