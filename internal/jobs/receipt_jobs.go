package jobs

import (
	"context"

	"practice-ledger/internal/logger"
)

const receiptRetryBatch = 200

// RetryMissingReceipts re-issues receipts for settled payments whose provider
// call failed. Payments settled in the last few minutes are left alone so the
// request that settled them can finish its own attempt.
func (jr *JobRunner) RetryMissingReceipts() {
	jr.runWithRecovery("RetryMissingReceipts", func(ctx context.Context) {
		cutoff := jr.now().Add(-jr.config.ReceiptRetryAfter())
		issued, failed, err := jr.services.Receipts.RetryMissing(ctx, cutoff, receiptRetryBatch)
		if err != nil {
			logger.Error("Failed to retry missing receipts", "error", err)
			return
		}
		logger.Info("Retried missing receipts", "issued", issued, "failed", failed, "cutoff", cutoff)
	})
}
