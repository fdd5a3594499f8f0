package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestRentalRepository_ListByUser_ClampsPage(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := NewRentalRepository(db)
	// Page 0 must not produce a negative OFFSET.
	mock.ExpectQuery(`SELECT id, user_id, origin_station_id`).
		WithArgs(int64(1), "", int32(20), int32(0)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "origin_station_id", "return_station_id", "slot_id",
			"package_id", "package_price", "package_duration_minutes", "payment_model", "status",
			"started_at", "due_at", "ended_at", "amount_paid", "overdue_amount", "is_returned_on_time",
			"created_at", "updated_at",
		}))
	mock.ExpectQuery(`SELECT count`).
		WithArgs(int64(1), "").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int32(0)))

	_, count, err := repo.ListByUser(context.Background(), 1, "", 0, 20)
	assert.NoError(t, err)
	assert.Equal(t, int32(0), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
