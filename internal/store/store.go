// Package store persists profiles, categories, tasks, applications and
// messages in Postgres through pgx. Queries are written by hand.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/skillhub/internal/apperr"
	"github.com/sudo-init-do/skillhub/internal/auth"
	"github.com/sudo-init-do/skillhub/internal/catalog"
	"github.com/sudo-init-do/skillhub/internal/marketplace"
	"github.com/sudo-init-do/skillhub/internal/user"
)

var (
	_ marketplace.Store = (*Store)(nil)
	_ user.ProfileStore = (*Store)(nil)
	_ auth.RoleLookup   = (*Store)(nil)
	_ catalog.Store     = (*Store)(nil)
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidText         = "22P02"
)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
	q    querier
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

// WithTx runs fn inside one transaction. Called on a transactional view it
// joins the open transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx marketplace.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Store("begin transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&Store{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Store("commit transaction", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// wrap classifies a driver error into the store error contract.
func wrap(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, apperr.ErrConflict)
		case pgForeignKeyViolation:
			if strings.Contains(pgErr.ConstraintName, "category") {
				return apperr.Invalid("unknown category_id")
			}
			return apperr.Invalid("referenced record does not exist")
		case pgInvalidText:
			return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
		}
	}
	return apperr.Store(op, err)
}

// casMiss reports a conditional update that matched no row.
func casMiss(op string, tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: no row in expected state: %w", op, apperr.ErrConflict)
	}
	return nil
}
