package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/repository"
)

type ledgerRepository struct {
	db DBTX
}

func NewLedgerRepository(db DBTX) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) CreateAccount(ctx context.Context, userID int64) (*domain.LedgerAccount, error) {
	query := `INSERT INTO ledger_accounts (user_id, wallet_balance, points_balance, blocked, version, created_at, updated_at)
	          VALUES ($1, 0, 0, FALSE, 1, NOW(), NOW())
	          RETURNING user_id, wallet_balance, points_balance, blocked, version, created_at, updated_at`
	var acct domain.LedgerAccount
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&acct.UserID, &acct.WalletBalance, &acct.PointsBalance, &acct.Blocked,
		&acct.Version, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (r *ledgerRepository) GetAccount(ctx context.Context, userID int64) (*domain.LedgerAccount, error) {
	query := `SELECT user_id, wallet_balance, points_balance, blocked, version, created_at, updated_at
	          FROM ledger_accounts WHERE user_id = $1`
	var acct domain.LedgerAccount
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&acct.UserID, &acct.WalletBalance, &acct.PointsBalance, &acct.Blocked,
		&acct.Version, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// ApplyDelta commits both deltas in one statement guarded by the version the
// caller read. Zero rows affected means either a concurrent writer won or the
// delta would drive a balance negative; the follow-up read tells them apart.
func (r *ledgerRepository) ApplyDelta(
	ctx context.Context,
	userID int64,
	walletDelta decimal.Decimal,
	pointsDelta int64,
	expectedVersion int64,
	allowNegative bool,
) error {
	query := `UPDATE ledger_accounts
	          SET wallet_balance = wallet_balance + $2,
	              points_balance = points_balance + $3,
	              version = version + 1,
	              updated_at = NOW()
	          WHERE user_id = $1 AND version = $4`
	if !allowNegative {
		query += ` AND wallet_balance + $2 >= 0 AND points_balance + $3 >= 0`
	}

	res, err := r.db.ExecContext(ctx, query, userID, walletDelta, pointsDelta, expectedVersion)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	acct, err := r.GetAccount(ctx, userID)
	if err != nil {
		return err
	}
	if acct.Version != expectedVersion {
		return domain.ErrConcurrentModification
	}
	return fmt.Errorf("%w: delta wallet %s points %d would go negative",
		domain.ErrInsufficientFunds, walletDelta, pointsDelta)
}

func (r *ledgerRepository) SetBlocked(ctx context.Context, userID int64, blocked bool) error {
	query := `UPDATE ledger_accounts SET blocked = $2, updated_at = NOW() WHERE user_id = $1`
	res, err := r.db.ExecContext(ctx, query, userID, blocked)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (r *ledgerRepository) CreateTransaction(ctx context.Context, tx *domain.LedgerTransaction) error {
	query := `INSERT INTO ledger_transactions (user_id, wallet_amount, points_amount, type, related_rental_id, related_intent_id, description, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, NOW()) RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query,
		tx.UserID, tx.WalletAmount, tx.PointsAmount, tx.Type,
		tx.RelatedRentalID, tx.RelatedIntentID, tx.Description,
	).Scan(&tx.ID, &tx.CreatedAt)
}

func (r *ledgerRepository) ListTransactionsByRental(ctx context.Context, rentalID string) ([]domain.LedgerTransaction, error) {
	query := `SELECT id, user_id, wallet_amount, points_amount, type, related_rental_id, related_intent_id, COALESCE(description, ''), created_at
	          FROM ledger_transactions WHERE related_rental_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, rentalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.LedgerTransaction
	for rows.Next() {
		var tx domain.LedgerTransaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.WalletAmount, &tx.PointsAmount,
			&tx.Type, &tx.RelatedRentalID, &tx.RelatedIntentID, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (r *ledgerRepository) ListTransactions(ctx context.Context, userID int64, page, pageSize int32) ([]domain.LedgerTransaction, int32, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	query := `SELECT id, user_id, wallet_amount, points_amount, type, related_rental_id, related_intent_id, COALESCE(description, ''), created_at
	          FROM ledger_transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, userID, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var txs []domain.LedgerTransaction
	for rows.Next() {
		var tx domain.LedgerTransaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.WalletAmount, &tx.PointsAmount,
			&tx.Type, &tx.RelatedRentalID, &tx.RelatedIntentID, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, 0, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var count int32
	countQuery := `SELECT count(*) FROM ledger_transactions WHERE user_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&count); err != nil {
		return nil, 0, err
	}
	return txs, count, nil
}
