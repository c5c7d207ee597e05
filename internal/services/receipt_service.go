package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// refreshWindow bounds how long a refresh waits for a device to upload a
// fresh receipt before completing empty-handed. The coordinator re-attempts
// acquisition exactly once after completion, whatever the outcome.
const refreshWindow = 30 * time.Second

// ReceiptStore caches the latest signed receipt blob per user.
type ReceiptStore interface {
	Receipt(ctx context.Context, userID int) ([]byte, bool)
	SetReceipt(ctx context.Context, userID int, blob []byte) error
}

// RefreshRequester asks the user's devices to re-upload their receipt,
// e.g. via a silent push.
type RefreshRequester interface {
	RequestReceiptUpload(ctx context.Context, userID int) error
}

// ReceiptService acquires the current signed receipt. Acquire is
// synchronous against the cache; Refresh asynchronously requests a new
// blob from the platform side and fires its completion exactly once.
// Concurrent Refresh calls for the same user share a single in-flight
// request instead of issuing duplicate platform requests.
type ReceiptService struct {
	Store     ReceiptStore
	Requester RefreshRequester // optional
	ErrorLog  *log.Logger

	mu       sync.Mutex
	inflight map[int]*refreshRequest
}

type refreshRequest struct {
	done  chan struct{}
	once  sync.Once
	timer *time.Timer
}

func NewReceiptService(store ReceiptStore, requester RefreshRequester, errorLog *log.Logger) *ReceiptService {
	return &ReceiptService{
		Store:     store,
		Requester: requester,
		ErrorLog:  errorLog,
		inflight:  make(map[int]*refreshRequest),
	}
}

func (s *ReceiptService) errorf(format string, args ...interface{}) {
	if s.ErrorLog != nil {
		s.ErrorLog.Printf(format, args...)
	} else {
		log.Printf(format, args...)
	}
}

// Acquire returns the cached receipt blob, if present.
func (s *ReceiptService) Acquire(ctx context.Context, userID int) ([]byte, bool) {
	return s.Store.Receipt(ctx, userID)
}

// Refresh requests a fresh receipt and invokes onComplete exactly once:
// either when a device uploads a new blob or when the refresh window
// elapses. A refresh failure is logged, never surfaced as an error — the
// caller simply finds the receipt still absent on its next Acquire.
func (s *ReceiptService) Refresh(userID int, onComplete func()) {
	s.mu.Lock()
	rq, ok := s.inflight[userID]
	if !ok {
		rq = &refreshRequest{done: make(chan struct{})}
		rq.timer = time.AfterFunc(refreshWindow, func() { s.complete(userID) })
		s.inflight[userID] = rq
	}
	s.mu.Unlock()

	if !ok && s.Requester != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), refreshWindow)
			defer cancel()
			if err := s.Requester.RequestReceiptUpload(ctx, userID); err != nil {
				s.errorf("[RECEIPT] refresh request user=%d: %v", userID, err)
			}
		}()
	}

	if onComplete != nil {
		go func() {
			<-rq.done
			onComplete()
		}()
	}
}

// StoreReceipt caches a freshly uploaded blob and resolves any pending
// refresh for the user.
func (s *ReceiptService) StoreReceipt(ctx context.Context, userID int, blob []byte) error {
	if err := s.Store.SetReceipt(ctx, userID, blob); err != nil {
		return err
	}
	s.complete(userID)
	return nil
}

func (s *ReceiptService) complete(userID int) {
	s.mu.Lock()
	rq, ok := s.inflight[userID]
	if ok {
		delete(s.inflight, userID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	rq.timer.Stop()
	rq.once.Do(func() { close(rq.done) })
}
