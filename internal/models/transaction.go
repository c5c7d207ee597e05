package models

import "fmt"

// TransactionState mirrors the payment queue's transaction states.
type TransactionState string

const (
	TransactionPurchased TransactionState = "purchased"
	TransactionRestored  TransactionState = "restored"
	TransactionFailed    TransactionState = "failed"
	TransactionPending   TransactionState = "pending"
	TransactionDeferred  TransactionState = "deferred"
)

// ParseTransactionState validates a client-supplied state string.
func ParseTransactionState(s string) (TransactionState, error) {
	switch TransactionState(s) {
	case TransactionPurchased, TransactionRestored, TransactionFailed,
		TransactionPending, TransactionDeferred:
		return TransactionState(s), nil
	default:
		return "", fmt.Errorf("unsupported transaction state: %s", s)
	}
}

// Terminal reports whether the state requires acknowledgment. Pending and
// deferred transactions are redelivered by the queue with a terminal state
// later.
func (s TransactionState) Terminal() bool {
	switch s {
	case TransactionPurchased, TransactionRestored, TransactionFailed:
		return true
	default:
		return false
	}
}

// Transaction is one payment-queue notification. Handle is the opaque token
// the queue uses to match the acknowledgment; it carries no other meaning.
type Transaction struct {
	Handle        string           `json:"-"`
	UserID        int              `json:"user_id"`
	ProductID     string           `json:"product_id"`
	TransactionID string           `json:"transaction_id,omitempty"`
	State         TransactionState `json:"state"`
	Error         string           `json:"error,omitempty"`
}
