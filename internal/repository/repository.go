// Package repository is the Postgres layer: users, vehicles,
// diagnostic sessions, chat history, magic-link tokens and
// orchestration session snapshots.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool tuning. Request handlers hold a connection only for the
// duration of one query; the chat history worker batches its inserts,
// so a small pool covers both.
const (
	maxConns = 10
	minConns = 2
)

// Repository provides database access methods.
type Repository struct {
	pool *pgxpool.Pool
}

// New opens a connection pool and verifies it before returning.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = maxConns
	config.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{pool: pool}, nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool exposes the underlying pool for test harness plumbing (schema
// resets, advisory locks). Application code goes through Repository
// methods.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// isUniqueViolation checks for a PostgreSQL unique constraint
// violation (error code 23505). Vehicle VINs and the partial primary
// index surface through it.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
