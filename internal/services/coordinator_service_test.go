package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bookstoreBack/internal/models"
)

type fakeQueue struct {
	ch    chan []models.Transaction
	mu    sync.Mutex
	acked []models.Transaction
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{ch: make(chan []models.Transaction, 8)}
}

func (q *fakeQueue) Transactions() <-chan []models.Transaction { return q.ch }

func (q *fakeQueue) Acknowledge(tx models.Transaction) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, tx)
}

func (q *fakeQueue) ackCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.acked)
}

type fakeReceipts struct {
	mu           sync.Mutex
	blob         []byte
	refreshCalls int
	// uploadOnRefresh simulates a device answering the refresh push.
	uploadOnRefresh []byte
}

func (f *fakeReceipts) Acquire(ctx context.Context, userID int) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blob, f.blob != nil
}

func (f *fakeReceipts) Refresh(userID int, onComplete func()) {
	f.mu.Lock()
	f.refreshCalls++
	if f.uploadOnRefresh != nil {
		f.blob = f.uploadOnRefresh
	}
	f.mu.Unlock()
	if onComplete != nil {
		onComplete()
	}
}

func (f *fakeReceipts) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

type fakeVerifier struct {
	mu     sync.Mutex
	result models.ValidationResult
	err    error
	calls  int
}

func (v *fakeVerifier) Verify(ctx context.Context, receipt []byte) (models.ValidationResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.result, v.err
}

func (v *fakeVerifier) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type fakeResolver struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (r *fakeResolver) Handle(ctx context.Context, userID int, productID string, result models.ValidationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, productID)
	return r.err
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fakeLedger struct {
	mu      sync.Mutex
	records []models.PaymentRecord
}

func (l *fakeLedger) RecordTransaction(ctx context.Context, rec models.PaymentRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

func (l *fakeLedger) lastOutcome() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records) == 0 {
		return ""
	}
	return l.records[len(l.records)-1].Outcome
}

type fakeNotifier struct {
	mu      sync.Mutex
	updated []int
}

func (n *fakeNotifier) EntitlementsUpdated(ctx context.Context, userID int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updated = append(n.updated, userID)
}

type testLogger struct{ t *testing.T }

func (l testLogger) Infof(format string, args ...interface{})  { l.t.Logf("INFO "+format, args...) }
func (l testLogger) Errorf(format string, args ...interface{}) { l.t.Logf("ERROR "+format, args...) }

type coordinatorFixture struct {
	queue    *fakeQueue
	receipts *fakeReceipts
	verifier *fakeVerifier
	resolver *fakeResolver
	ledger   *fakeLedger
	notifier *fakeNotifier
	coord    *CoordinatorService
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	f := &coordinatorFixture{
		queue:    newFakeQueue(),
		receipts: &fakeReceipts{blob: []byte("receipt")},
		verifier: &fakeVerifier{result: models.ValidationResult{Status: 0}},
		resolver: &fakeResolver{},
		ledger:   &fakeLedger{},
		notifier: &fakeNotifier{},
	}
	f.coord = &CoordinatorService{
		Queue:        f.queue,
		Receipts:     f.receipts,
		Verifier:     f.verifier,
		Entitlements: f.resolver,
		Ledger:       f.ledger,
		Notifier:     f.notifier,
		Logger:       testLogger{t},
	}
	return f
}

func purchasedTx() models.Transaction {
	return models.Transaction{
		Handle:        "h-1",
		UserID:        1,
		ProductID:     models.TenBookBucksProductID,
		TransactionID: "tx-1",
		State:         models.TransactionPurchased,
	}
}

func TestProcess_PurchasedGrantAndAck(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.coord.Process(context.Background(), purchasedTx())

	if f.queue.ackCount() != 1 {
		t.Errorf("ack count: got %d want 1", f.queue.ackCount())
	}
	if f.resolver.callCount() != 1 {
		t.Errorf("resolver calls: got %d want 1", f.resolver.callCount())
	}
	if got := f.ledger.lastOutcome(); got != models.PaymentOutcomeGranted {
		t.Errorf("ledger outcome: got %q want %q", got, models.PaymentOutcomeGranted)
	}
	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	if len(f.notifier.updated) != 1 || f.notifier.updated[0] != 1 {
		t.Errorf("notifier updates: %v", f.notifier.updated)
	}
}

func TestProcess_VerifyTransportErrorStillAcks(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.verifier.err = errors.New("connection refused")

	f.coord.Process(context.Background(), purchasedTx())

	if f.queue.ackCount() != 1 {
		t.Errorf("transaction must be acknowledged despite verify failure, acks=%d", f.queue.ackCount())
	}
	if f.resolver.callCount() != 0 {
		t.Error("resolver must not run on transport failure")
	}
	if got := f.ledger.lastOutcome(); got != models.PaymentOutcomeVerifyFailed {
		t.Errorf("ledger outcome: got %q", got)
	}
	// A single best effort: no retry inside the coordinator.
	if f.verifier.callCount() != 1 {
		t.Errorf("verifier calls: got %d want 1", f.verifier.callCount())
	}
}

func TestProcess_AuthorityRejectionStillAcks(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.verifier.result = models.ValidationResult{Status: 21003}

	f.coord.Process(context.Background(), purchasedTx())

	if f.queue.ackCount() != 1 {
		t.Error("rejected transaction must still be acknowledged")
	}
	if f.resolver.callCount() != 0 {
		t.Error("resolver must not run for an unusable receipt")
	}
	if got := f.ledger.lastOutcome(); got != models.PaymentOutcomeRejected {
		t.Errorf("ledger outcome: got %q", got)
	}
}

func TestProcess_ExpiredLegacyReceiptReachesResolver(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.verifier.result = models.ValidationResult{Status: 21006}

	f.coord.Process(context.Background(), purchasedTx())

	if f.resolver.callCount() != 1 {
		t.Error("21006 carries a usable receipt and must reach the resolver")
	}
	if f.queue.ackCount() != 1 {
		t.Error("transaction must be acknowledged")
	}
}

func TestProcess_ResolverErrorStillAcks(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.resolver.err = errors.New("store write failed")

	f.coord.Process(context.Background(), purchasedTx())

	if f.queue.ackCount() != 1 {
		t.Error("transaction must be acknowledged despite resolver failure")
	}
	if got := f.ledger.lastOutcome(); got != models.PaymentOutcomeRejected {
		t.Errorf("ledger outcome: got %q", got)
	}
}

func TestProcess_FailedTransactionAcksWithoutVerification(t *testing.T) {
	f := newCoordinatorFixture(t)
	tx := purchasedTx()
	tx.State = models.TransactionFailed
	tx.Error = "payment declined"

	f.coord.Process(context.Background(), tx)

	if f.queue.ackCount() != 1 {
		t.Error("failed transaction must be acknowledged")
	}
	if f.verifier.callCount() != 0 {
		t.Error("failed transaction must not trigger verification")
	}
	if got := f.ledger.lastOutcome(); got != models.PaymentOutcomeFailed {
		t.Errorf("ledger outcome: got %q", got)
	}
}

func TestProcess_PendingAndDeferredNotAcked(t *testing.T) {
	f := newCoordinatorFixture(t)
	for _, state := range []models.TransactionState{models.TransactionPending, models.TransactionDeferred} {
		tx := purchasedTx()
		tx.State = state
		f.coord.Process(context.Background(), tx)
	}

	if f.queue.ackCount() != 0 {
		t.Errorf("pending/deferred must not be acknowledged, acks=%d", f.queue.ackCount())
	}
	if f.verifier.callCount() != 0 {
		t.Error("pending/deferred must not trigger verification")
	}
}

func TestProcess_AbsentReceiptRefreshesOnce(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.receipts.blob = nil
	f.receipts.uploadOnRefresh = []byte("fresh-receipt")

	f.coord.Process(context.Background(), purchasedTx())

	if f.receipts.refreshCount() != 1 {
		t.Errorf("refresh calls: got %d want 1", f.receipts.refreshCount())
	}
	if got := f.ledger.lastOutcome(); got != models.PaymentOutcomeGranted {
		t.Errorf("ledger outcome: got %q want granted after refresh", got)
	}
	if f.queue.ackCount() != 1 {
		t.Error("transaction must be acknowledged")
	}
}

func TestProcess_ReceiptStillAbsentAfterRefresh(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.receipts.blob = nil

	f.coord.Process(context.Background(), purchasedTx())

	if f.receipts.refreshCount() != 1 {
		t.Errorf("refresh calls: got %d want exactly 1", f.receipts.refreshCount())
	}
	if f.verifier.callCount() != 0 {
		t.Error("verification must not run without a receipt")
	}
	if got := f.ledger.lastOutcome(); got != models.PaymentOutcomeReceiptAbsent {
		t.Errorf("ledger outcome: got %q", got)
	}
	if f.queue.ackCount() != 1 {
		t.Error("transaction must be acknowledged even when no receipt shows up")
	}
}

func TestRun_ProcessesDeliveredBatches(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go f.coord.Run(ctx)

	f.queue.ch <- []models.Transaction{purchasedTx(), {
		Handle: "h-2", UserID: 2, ProductID: models.SeasonOnePassProductID,
		TransactionID: "tx-2", State: models.TransactionRestored,
	}}

	deadline := time.After(2 * time.Second)
	for f.queue.ackCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for acks, got %d", f.queue.ackCount())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRun_StopsWhenQueueCloses(t *testing.T) {
	f := newCoordinatorFixture(t)
	done := make(chan struct{})
	go func() {
		f.coord.Run(context.Background())
		close(done)
	}()

	close(f.queue.ch)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the queue closed")
	}
}
