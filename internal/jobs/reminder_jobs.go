package jobs

import (
	"context"
	"time"

	"powerbank-rental-backend/internal/billing"
	"powerbank-rental-backend/internal/logger"
)

const overdueReminderBatchSize = 500

// SendOverdueReminders notifies every holder of an active rental past its due
// time, carrying the fee accrued so far. The fee is computed live from the
// late fee config; nothing is written to the rental until it actually
// returns.
func (jr *JobRunner) SendOverdueReminders() {
	jr.runWithRecovery("SendOverdueReminders", func() {
		ctx := context.Background()
		now := time.Now().UTC()

		lateFee := billing.LateFeeConfig{
			GracePeriodMinutes: jr.config.LateFee.GracePeriodMinutes,
			HourlyRate:         jr.config.LateFee.HourlyRate,
			MaxDailyRate:       jr.config.LateFee.MaxDailyRate,
		}

		overdue, err := jr.store.Rentals().ListActivePastDue(ctx, now, overdueReminderBatchSize)
		if err != nil {
			logger.Error("Failed to list overdue rentals", "error", err)
			return
		}

		for _, rental := range overdue {
			fee := billing.CalculateOverdueFee(rental.DueAt, now, lateFee)
			jr.services.Notifier.Notify(ctx, rental.UserID, "OVERDUE_REMINDER", map[string]string{
				"rental_id":   rental.ID,
				"due_at":      rental.DueAt.Format(time.RFC3339),
				"accrued_fee": fee.StringFixed(2),
			})
			logger.Debug("Sent overdue reminder",
				"rental_id", rental.ID,
				"user_id", rental.UserID,
				"accrued_fee", fee.StringFixed(2))
		}

		if len(overdue) > 0 {
			logger.Info("Sent overdue reminders", "count", len(overdue))
		}
	})
}
