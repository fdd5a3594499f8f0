package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"powerbank-rental-backend/internal/repository"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so every repository works
// standalone or inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB

	users         repository.UserRepository
	ledger        repository.LedgerRepository
	rentals       repository.RentalRepository
	intents       repository.IntentRepository
	packages      repository.PackageRepository
	notifications repository.NotificationRepository
}

func NewStore(db *sql.DB) *Store {
	return newStore(db, db)
}

func newStore(db *sql.DB, q DBTX) *Store {
	return &Store{
		db:            db,
		users:         NewUserRepository(q),
		ledger:        NewLedgerRepository(q),
		rentals:       NewRentalRepository(q),
		intents:       NewIntentRepository(q),
		packages:      NewPackageRepository(q),
		notifications: NewNotificationRepository(q),
	}
}

func (s *Store) Users() repository.UserRepository                 { return s.users }
func (s *Store) Ledger() repository.LedgerRepository              { return s.ledger }
func (s *Store) Rentals() repository.RentalRepository             { return s.rentals }
func (s *Store) Intents() repository.IntentRepository             { return s.intents }
func (s *Store) Packages() repository.PackageRepository           { return s.packages }
func (s *Store) Notifications() repository.NotificationRepository { return s.notifications }

// ExecTx runs fn with repositories bound to one database transaction.
func (s *Store) ExecTx(ctx context.Context, fn func(repository.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(newStore(s.db, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
