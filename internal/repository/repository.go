package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, so every repository can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries bundles the repositories bound to one DBTX.
type Queries struct {
	IPs       IPRepository
	Requests  RequestRepository
	Ledger    Ledger
	Rooms     RoomRepository
	Companies CompanyRepository
}

// NewQueries binds every repository to db
func NewQueries(db DBTX) Queries {
	return Queries{
		IPs:       NewIPRepository(db),
		Requests:  NewRequestRepository(db),
		Ledger:    NewLedger(db),
		Rooms:     NewRoomRepository(db),
		Companies: NewCompanyRepository(db),
	}
}

// Store owns the database handle and runs units of work.
type Store struct {
	db *sql.DB
}

// NewStore creates a new store. The handle must be opened with an immediate
// transaction lock (see config.DSN) for InTx to serialize writers.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// Queries returns repositories that run outside any transaction
func (s *Store) Queries() Queries {
	return NewQueries(s.db)
}

// InTx runs fn inside one transaction. The transaction commits when fn returns
// nil and rolls back otherwise; fn's error is returned unchanged.
func (s *Store) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(NewQueries(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	return nil
}
