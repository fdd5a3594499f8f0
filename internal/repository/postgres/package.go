package postgres

import (
	"context"
	"database/sql"
	"errors"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/repository"
)

type packageRepository struct {
	db DBTX
}

func NewPackageRepository(db DBTX) repository.PackageRepository {
	return &packageRepository{db: db}
}

func (r *packageRepository) GetByID(ctx context.Context, id string) (*domain.RentalPackage, error) {
	query := `SELECT id, name, price, duration_minutes, active, created_at
	          FROM rental_packages WHERE id = $1`
	var pkg domain.RentalPackage
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&pkg.ID, &pkg.Name, &pkg.Price, &pkg.DurationMinutes, &pkg.Active, &pkg.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *packageRepository) List(ctx context.Context) ([]domain.RentalPackage, error) {
	query := `SELECT id, name, price, duration_minutes, active, created_at
	          FROM rental_packages WHERE active ORDER BY duration_minutes ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pkgs []domain.RentalPackage
	for rows.Next() {
		var pkg domain.RentalPackage
		if err := rows.Scan(&pkg.ID, &pkg.Name, &pkg.Price, &pkg.DurationMinutes, &pkg.Active, &pkg.CreatedAt); err != nil {
			return nil, err
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, rows.Err()
}

func (r *packageRepository) CheapestCovering(ctx context.Context, minutes int64) (*domain.RentalPackage, error) {
	query := `SELECT id, name, price, duration_minutes, active, created_at
	          FROM rental_packages WHERE active AND duration_minutes >= $1
	          ORDER BY price ASC LIMIT 1`
	var pkg domain.RentalPackage
	err := r.db.QueryRowContext(ctx, query, minutes).Scan(
		&pkg.ID, &pkg.Name, &pkg.Price, &pkg.DurationMinutes, &pkg.Active, &pkg.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		// Usage exceeds every tier; price at the longest one.
		fallback := `SELECT id, name, price, duration_minutes, active, created_at
		             FROM rental_packages WHERE active
		             ORDER BY duration_minutes DESC LIMIT 1`
		err = r.db.QueryRowContext(ctx, fallback).Scan(
			&pkg.ID, &pkg.Name, &pkg.Price, &pkg.DurationMinutes, &pkg.Active, &pkg.CreatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}
