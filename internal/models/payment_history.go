package models

import "time"

// Payment history outcomes recorded per processed transaction. The history
// ledger exists for manual reconciliation via restore-purchases, not for
// entitlement decisions.
const (
	PaymentOutcomeGranted       = "granted"
	PaymentOutcomeRejected      = "rejected"
	PaymentOutcomeVerifyFailed  = "verify_failed"
	PaymentOutcomeReceiptAbsent = "receipt_absent"
	PaymentOutcomeFailed        = "failed"
)

// PaymentRecord is one row of the payment history ledger.
type PaymentRecord struct {
	ID            int64     `json:"id"`
	UserID        int       `json:"user_id"`
	ProductID     string    `json:"product_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	State         string    `json:"state"`
	StatusCode    int       `json:"status_code"`
	Outcome       string    `json:"outcome"`
	CreatedAt     time.Time `json:"created_at"`
}
