// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every repository
// works the same inside and outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repos groups the repositories bound to one Querier.
type Repos struct {
	Accounts   AccountRepository
	Profiles   ProfileRepository
	Lessons    LessonRepository
	Activities ActivityRepository
	Multimedia MultimediaRepository
	Progress   ProgressRepository
}

// NewRepos binds every repository to q.
func NewRepos(q Querier) *Repos {
	return &Repos{
		Accounts:   NewAccountRepository(q),
		Profiles:   NewProfileRepository(q),
		Lessons:    NewLessonRepository(q),
		Activities: NewActivityRepository(q),
		Multimedia: NewMultimediaRepository(q),
		Progress:   NewProgressRepository(q),
	}
}

// Store gives services access to repositories and transactions.
type Store interface {
	// Repos returns repositories that run each statement on its own.
	Repos() *Repos
	// WithTx runs fn with repositories bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(*Repos) error) error
}

type pgStore struct {
	pool  *pgxpool.Pool
	repos *Repos
}

// NewStore creates a Store backed by a pgx pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool, repos: NewRepos(pool)}
}

func (s *pgStore) Repos() *Repos {
	return s.repos
}

func (s *pgStore) WithTx(ctx context.Context, fn func(*Repos) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(NewRepos(tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ Store = (*pgStore)(nil)
