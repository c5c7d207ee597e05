package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bookstoreBack/internal/models"
)

// PaymentHistoryRepository records every processed payment-queue
// transaction. The ledger supports manual reconciliation after failed
// verifications; entitlement decisions never read it.
type PaymentHistoryRepository struct {
	DB *sql.DB
}

// RecordTransaction appends one row to the ledger.
func (r *PaymentHistoryRepository) RecordTransaction(ctx context.Context, rec models.PaymentRecord) error {
	query := `
    INSERT INTO apple_payment_history (user_id, product_id, transaction_id, state, status_code, outcome, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?)`
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx, query,
		rec.UserID, rec.ProductID, rec.TransactionID, rec.State, rec.StatusCode, rec.Outcome, createdAt)
	return err
}

// TransactionGranted reports whether a grant was already recorded for the
// transaction id.
func (r *PaymentHistoryRepository) TransactionGranted(ctx context.Context, transactionID string) (bool, error) {
	query := `
    SELECT EXISTS(SELECT 1 FROM apple_payment_history WHERE transaction_id = ? AND outcome = ?)`
	var exists bool
	err := r.DB.QueryRowContext(ctx, query, transactionID, models.PaymentOutcomeGranted).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// TransactionByID returns the most recent ledger row for the transaction
// id, or ErrNoRecord when it was never processed.
func (r *PaymentHistoryRepository) TransactionByID(ctx context.Context, transactionID string) (models.PaymentRecord, error) {
	query := `
    SELECT id, user_id, product_id, transaction_id, state, status_code, outcome, created_at
    FROM apple_payment_history WHERE transaction_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`
	var rec models.PaymentRecord
	err := r.DB.QueryRowContext(ctx, query, transactionID).Scan(
		&rec.ID, &rec.UserID, &rec.ProductID, &rec.TransactionID, &rec.State, &rec.StatusCode, &rec.Outcome, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PaymentRecord{}, models.ErrNoRecord
	}
	if err != nil {
		return models.PaymentRecord{}, err
	}
	return rec, nil
}

// HistoryByUserID returns the user's processed transactions, newest first.
func (r *PaymentHistoryRepository) HistoryByUserID(ctx context.Context, userID int) ([]models.PaymentRecord, error) {
	query := `
    SELECT id, user_id, product_id, transaction_id, state, status_code, outcome, created_at
    FROM apple_payment_history WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.PaymentRecord
	for rows.Next() {
		var rec models.PaymentRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ProductID, &rec.TransactionID, &rec.State, &rec.StatusCode, &rec.Outcome, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
