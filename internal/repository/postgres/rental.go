package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/repository"
)

type rentalRepository struct {
	db DBTX
}

func NewRentalRepository(db DBTX) repository.RentalRepository {
	return &rentalRepository{db: db}
}

const rentalColumns = `id, user_id, origin_station_id, return_station_id, slot_id,
	package_id, package_price, package_duration_minutes, payment_model, status,
	started_at, due_at, ended_at, amount_paid, overdue_amount, is_returned_on_time,
	created_at, updated_at`

func (r *rentalRepository) Create(ctx context.Context, rental *domain.Rental) error {
	query := `INSERT INTO rentals (id, user_id, origin_station_id, slot_id,
	            package_id, package_price, package_duration_minutes, payment_model, status,
	            started_at, due_at, amount_paid, overdue_amount, is_returned_on_time,
	            created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
	          RETURNING created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		rental.ID, rental.UserID, rental.OriginStationID, rental.SlotID,
		rental.PackageID, rental.PackagePrice, rental.PackageDurationMinutes,
		rental.PaymentModel, rental.Status, rental.StartedAt, rental.DueAt,
		rental.AmountPaid, rental.OverdueAmount, rental.IsReturnedOnTime,
	).Scan(&rental.CreatedAt, &rental.UpdatedAt)
}

func (r *rentalRepository) GetByID(ctx context.Context, id string) (*domain.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *rentalRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE id = $1 FOR UPDATE`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *rentalRepository) scanOne(row *sql.Row) (*domain.Rental, error) {
	var rental domain.Rental
	err := row.Scan(
		&rental.ID, &rental.UserID, &rental.OriginStationID, &rental.ReturnStationID,
		&rental.SlotID, &rental.PackageID, &rental.PackagePrice, &rental.PackageDurationMinutes,
		&rental.PaymentModel, &rental.Status, &rental.StartedAt, &rental.DueAt,
		&rental.EndedAt, &rental.AmountPaid, &rental.OverdueAmount, &rental.IsReturnedOnTime,
		&rental.CreatedAt, &rental.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rental, nil
}

func (r *rentalRepository) Update(ctx context.Context, rental *domain.Rental) error {
	query := `UPDATE rentals
	          SET return_station_id = $2, status = $3, due_at = $4, ended_at = $5,
	              amount_paid = $6, overdue_amount = $7, is_returned_on_time = $8,
	              updated_at = NOW()
	          WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query,
		rental.ID, rental.ReturnStationID, rental.Status, rental.DueAt, rental.EndedAt,
		rental.AmountPaid, rental.OverdueAmount, rental.IsReturnedOnTime,
	)
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

func (r *rentalRepository) ListByUser(ctx context.Context, userID int64, status string, page, pageSize int32) ([]domain.Rental, int32, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	query := `SELECT ` + rentalColumns + `
	          FROM rentals
	          WHERE user_id = $1 AND ($2 = '' OR status = $2)
	          ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	rows, err := r.db.QueryContext(ctx, query, userID, status, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	rentals, err := scanRentals(rows)
	if err != nil {
		return nil, 0, err
	}

	var count int32
	countQuery := `SELECT count(*) FROM rentals WHERE user_id = $1 AND ($2 = '' OR status = $2)`
	if err := r.db.QueryRowContext(ctx, countQuery, userID, status).Scan(&count); err != nil {
		return nil, 0, err
	}
	return rentals, count, nil
}

func (r *rentalRepository) ListActivePastDue(ctx context.Context, now time.Time, limit int32) ([]domain.Rental, error) {
	query := `SELECT ` + rentalColumns + `
	          FROM rentals
	          WHERE status = 'ACTIVE' AND due_at < $1
	          ORDER BY due_at ASC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRentals(rows)
}

func (r *rentalRepository) CountWithUnpaidDues(ctx context.Context, userID int64) (int32, error) {
	var count int32
	query := `SELECT count(*) FROM rentals WHERE user_id = $1 AND overdue_amount > 0`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&count)
	return count, err
}

func scanRentals(rows *sql.Rows) ([]domain.Rental, error) {
	var rentals []domain.Rental
	for rows.Next() {
		var rental domain.Rental
		if err := rows.Scan(
			&rental.ID, &rental.UserID, &rental.OriginStationID, &rental.ReturnStationID,
			&rental.SlotID, &rental.PackageID, &rental.PackagePrice, &rental.PackageDurationMinutes,
			&rental.PaymentModel, &rental.Status, &rental.StartedAt, &rental.DueAt,
			&rental.EndedAt, &rental.AmountPaid, &rental.OverdueAmount, &rental.IsReturnedOnTime,
			&rental.CreatedAt, &rental.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rentals = append(rentals, rental)
	}
	return rentals, rows.Err()
}
