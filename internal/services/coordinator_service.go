package services

import (
	"context"

	"bookstoreBack/internal/models"
)

// Logger is the minimal logging interface required by the coordinator.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// PaymentQueue delivers transaction-state batches and accepts
// acknowledgments. Every delivered terminal transaction must be
// acknowledged exactly once or the queue redelivers it on every launch.
type PaymentQueue interface {
	Transactions() <-chan []models.Transaction
	Acknowledge(tx models.Transaction)
}

// ReceiptAcquirer obtains the current signed receipt blob.
type ReceiptAcquirer interface {
	Acquire(ctx context.Context, userID int) ([]byte, bool)
	Refresh(userID int, onComplete func())
}

// ReceiptVerifier submits a receipt to the verification authority.
type ReceiptVerifier interface {
	Verify(ctx context.Context, receipt []byte) (models.ValidationResult, error)
}

// EntitlementResolver applies a verification result to the user's state.
type EntitlementResolver interface {
	Handle(ctx context.Context, userID int, productID string, result models.ValidationResult) error
}

// PaymentLedger records processed transactions for manual reconciliation.
type PaymentLedger interface {
	RecordTransaction(ctx context.Context, rec models.PaymentRecord) error
}

// UpdateNotifier is told after an entitlement actually changed.
type UpdateNotifier interface {
	EntitlementsUpdated(ctx context.Context, userID int)
}

// CoordinatorService drives each payment-queue transaction through
// acquisition, verification and resolution, and acknowledges it exactly
// once regardless of the outcome. Verification gets a single best effort:
// a transient failure leaves the entitlement ungranted until the user
// performs a restore, which redelivers the transaction.
type CoordinatorService struct {
	Queue        PaymentQueue
	Receipts     ReceiptAcquirer
	Verifier     ReceiptVerifier
	Entitlements EntitlementResolver
	Ledger       PaymentLedger   // optional
	Notifier     UpdateNotifier  // optional
	Logger       Logger
}

// Run consumes batches until the context is cancelled or the queue closes.
// Each transaction is processed on its own goroutine so the queue's
// delivery goroutine is never blocked by network calls.
func (c *CoordinatorService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-c.Queue.Transactions():
			if !ok {
				return
			}
			for _, tx := range batch {
				go c.Process(ctx, tx)
			}
		}
	}
}

// Process handles one transaction to completion.
func (c *CoordinatorService) Process(ctx context.Context, tx models.Transaction) {
	switch tx.State {
	case models.TransactionPurchased, models.TransactionRestored:
		outcome, status := c.verifyAndResolve(ctx, tx)
		c.record(ctx, tx, status, outcome)
		c.Queue.Acknowledge(tx)

	case models.TransactionFailed:
		c.Logger.Errorf("[QUEUE] transaction failed user=%d product=%q: %s", tx.UserID, tx.ProductID, tx.Error)
		c.record(ctx, tx, 0, models.PaymentOutcomeFailed)
		c.Queue.Acknowledge(tx)

	default:
		// pending/deferred: the queue redelivers a terminal state later.
	}
}

// verifyAndResolve makes the single best-effort pass: acquire (with at most
// one refresh retry), verify, resolve. It never returns an error — every
// failure path is logged with enough context for manual reconciliation and
// the caller acknowledges regardless.
func (c *CoordinatorService) verifyAndResolve(ctx context.Context, tx models.Transaction) (string, int) {
	receipt, ok := c.Receipts.Acquire(ctx, tx.UserID)
	if !ok {
		done := make(chan struct{})
		c.Receipts.Refresh(tx.UserID, func() { close(done) })
		select {
		case <-done:
		case <-ctx.Done():
			return models.PaymentOutcomeReceiptAbsent, 0
		}
		receipt, ok = c.Receipts.Acquire(ctx, tx.UserID)
		if !ok {
			c.Logger.Errorf("[IAP] receipt absent after refresh user=%d product=%q tx=%s",
				tx.UserID, tx.ProductID, tx.TransactionID)
			return models.PaymentOutcomeReceiptAbsent, 0
		}
	}

	result, err := c.Verifier.Verify(ctx, receipt)
	if err != nil {
		c.Logger.Errorf("[IAP] verify failed user=%d product=%q tx=%s: %v",
			tx.UserID, tx.ProductID, tx.TransactionID, err)
		return models.PaymentOutcomeVerifyFailed, 0
	}

	if !result.ReceiptUsable() {
		c.Logger.Errorf("[IAP] authority rejected receipt user=%d product=%q tx=%s status=%d (%s)",
			tx.UserID, tx.ProductID, tx.TransactionID, result.Status, result.StatusDescription())
		return models.PaymentOutcomeRejected, result.Status
	}

	if err := c.Entitlements.Handle(ctx, tx.UserID, tx.ProductID, result); err != nil {
		c.Logger.Errorf("[IAP] resolve failed user=%d product=%q tx=%s status=%d: %v",
			tx.UserID, tx.ProductID, tx.TransactionID, result.Status, err)
		return models.PaymentOutcomeRejected, result.Status
	}

	c.Logger.Infof("[IAP] entitlement resolved user=%d product=%q tx=%s status=%d",
		tx.UserID, tx.ProductID, tx.TransactionID, result.Status)
	if c.Notifier != nil {
		c.Notifier.EntitlementsUpdated(ctx, tx.UserID)
	}
	return models.PaymentOutcomeGranted, result.Status
}

func (c *CoordinatorService) record(ctx context.Context, tx models.Transaction, status int, outcome string) {
	if c.Ledger == nil {
		return
	}
	rec := models.PaymentRecord{
		UserID:        tx.UserID,
		ProductID:     tx.ProductID,
		TransactionID: tx.TransactionID,
		State:         string(tx.State),
		StatusCode:    status,
		Outcome:       outcome,
	}
	if err := c.Ledger.RecordTransaction(ctx, rec); err != nil {
		c.Logger.Errorf("[LEDGER] record user=%d tx=%s: %v", tx.UserID, tx.TransactionID, err)
	}
}
