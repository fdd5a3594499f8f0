package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/repository"
)

type intentRepository struct {
	db DBTX
}

func NewIntentRepository(db DBTX) repository.IntentRepository {
	return &intentRepository{db: db}
}

const intentColumns = `id, user_id, purpose, amount, currency, gateway, status,
	expires_at, related_rental_id, gateway_reference, created_at, updated_at`

func (r *intentRepository) Create(ctx context.Context, intent *domain.PaymentIntent) error {
	query := `INSERT INTO payment_intents (id, user_id, purpose, amount, currency, gateway, status,
	            expires_at, related_rental_id, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	          RETURNING created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		intent.ID, intent.UserID, intent.Purpose, intent.Amount, intent.Currency,
		intent.Gateway, intent.Status, intent.ExpiresAt, intent.RelatedRentalID,
	).Scan(&intent.CreatedAt, &intent.UpdatedAt)
}

func (r *intentRepository) GetByID(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *intentRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE id = $1 FOR UPDATE`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *intentRepository) scanOne(row *sql.Row) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	err := row.Scan(
		&intent.ID, &intent.UserID, &intent.Purpose, &intent.Amount, &intent.Currency,
		&intent.Gateway, &intent.Status, &intent.ExpiresAt, &intent.RelatedRentalID,
		&intent.GatewayReference, &intent.CreatedAt, &intent.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// TransitionFromPending is a compare-and-set on status. The WHERE clause makes
// the terminal check and the transition one atomic step, so a raced duplicate
// completion observes ErrIntentAlreadyTerminal instead of double-applying.
func (r *intentRepository) TransitionFromPending(ctx context.Context, id string, to domain.IntentStatus, gatewayReference *string) error {
	query := `UPDATE payment_intents
	          SET status = $2, gateway_reference = COALESCE($3, gateway_reference), updated_at = NOW()
	          WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, to, gatewayReference, domain.IntentStatusPending)
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

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrIntentAlreadyTerminal
}

func (r *intentRepository) ExpireStale(ctx context.Context, now time.Time) (int32, error) {
	query := `UPDATE payment_intents
	          SET status = $1, updated_at = NOW()
	          WHERE status = $2 AND expires_at <= $3`
	res, err := r.db.ExecContext(ctx, query, domain.IntentStatusExpired, domain.IntentStatusPending, now)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int32(affected), nil
}
