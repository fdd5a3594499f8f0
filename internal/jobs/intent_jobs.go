package jobs

import (
	"context"

	"powerbank-rental-backend/internal/logger"
)

// ExpireStaleIntents sweeps PENDING payment intents whose TTL elapsed. A user
// who abandoned a checkout never completes it; the sweep keeps those rows from
// accumulating and guarantees a late gateway callback meets an EXPIRED intent
// instead of a stale PENDING one.
func (jr *JobRunner) ExpireStaleIntents() {
	jr.runWithRecovery("ExpireStaleIntents", func() {
		ctx := context.Background()

		swept, err := jr.services.Payment.ExpireStaleIntents(ctx)
		if err != nil {
			logger.Error("Failed to expire stale intents", "error", err)
			return
		}
		if swept > 0 {
			logger.Info("Expired stale payment intents", "count", swept)
		}
	})
}
