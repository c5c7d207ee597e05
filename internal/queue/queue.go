package queue

import (
	"sync"

	"github.com/google/uuid"

	"bookstoreBack/internal/models"
)

// Queue bridges the transaction intake endpoint and the coordinator. It
// hands the coordinator batches the way the platform payment queue hands
// them to a transaction observer, and tracks which handles are still
// unacknowledged. The real replay guarantee lives on the device side: a
// client that gets no 2xx for its notification posts it again.
type Queue struct {
	mu      sync.Mutex
	pending map[string]models.Transaction
	ch      chan []models.Transaction
	closed  bool
}

func New(buffer int) *Queue {
	return &Queue{
		pending: make(map[string]models.Transaction),
		ch:      make(chan []models.Transaction, buffer),
	}
}

// Publish delivers one batch. Transactions without a handle get an opaque
// one assigned. Only terminal states enter the pending set: pending and
// deferred notifications are never acknowledged, their handles would pile
// up until the process restarts.
func (q *Queue) Publish(txs ...models.Transaction) {
	if len(txs) == 0 {
		return
	}
	batch := make([]models.Transaction, len(txs))
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	for i, tx := range txs {
		if tx.Handle == "" {
			tx.Handle = uuid.NewString()
		}
		if tx.State.Terminal() {
			q.pending[tx.Handle] = tx
		}
		batch[i] = tx
	}
	q.mu.Unlock()
	q.ch <- batch
}

// Transactions is the delivery channel consumed by the coordinator.
func (q *Queue) Transactions() <-chan []models.Transaction {
	return q.ch
}

// Acknowledge marks the transaction processed. Acknowledging an unknown or
// already acknowledged handle is a no-op.
func (q *Queue) Acknowledge(tx models.Transaction) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, tx.Handle)
}

// Pending returns the transactions delivered but not yet acknowledged.
func (q *Queue) Pending() []models.Transaction {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.Transaction, 0, len(q.pending))
	for _, tx := range q.pending {
		out = append(out, tx)
	}
	return out
}

// Close stops delivery. Publish after Close is dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
