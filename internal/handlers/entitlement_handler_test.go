package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"bookstoreBack/internal/models"
	"bookstoreBack/internal/services"
)

func TestGetEntitlements(t *testing.T) {
	repo := newTestRepo()
	h := &EntitlementHandler{Service: &services.EntitlementService{Repo: repo}}

	ctx := context.Background()
	if _, err := repo.AddBookBucks(ctx, 7, 15); err != nil {
		t.Fatal(err)
	}
	if err := repo.AppendOwnedBookID(ctx, 7, 3); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	h.GetEntitlements(w, authedRequest(http.MethodGet, "/entitlements", "", 7))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body=%s", w.Code, w.Body.String())
	}
	var e models.Entitlement
	if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.BookBucks != 15 || !e.OwnsBook(3) {
		t.Errorf("snapshot mismatch: %+v", e)
	}
}

func TestGetEntitlements_Unauthorized(t *testing.T) {
	h := &EntitlementHandler{Service: &services.EntitlementService{Repo: newTestRepo()}}
	w := httptest.NewRecorder()
	h.GetEntitlements(w, authedRequest(http.MethodGet, "/entitlements", "", 0))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d want 401", w.Code)
	}
}

func TestRedeemBook(t *testing.T) {
	repo := newTestRepo()
	h := &EntitlementHandler{Service: &services.EntitlementService{Repo: repo}}

	if _, err := repo.AddBookBucks(context.Background(), 7, 20); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	h.RedeemBook(w, authedRequest(http.MethodPost, "/books/redeem", `{"book_id": 42, "cost": 12}`, 7))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body=%s", w.Code, w.Body.String())
	}
	var e models.Entitlement
	if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.BookBucks != 8 || !e.OwnsBook(42) {
		t.Errorf("snapshot after redeem mismatch: %+v", e)
	}
}

func TestRedeemBook_InsufficientBucks(t *testing.T) {
	h := &EntitlementHandler{Service: &services.EntitlementService{Repo: newTestRepo()}}

	w := httptest.NewRecorder()
	h.RedeemBook(w, authedRequest(http.MethodPost, "/books/redeem", `{"book_id": 42, "cost": 12}`, 7))

	if w.Code != http.StatusPaymentRequired {
		t.Errorf("status: got %d want 402", w.Code)
	}
}

func TestRedeemBook_Validation(t *testing.T) {
	h := &EntitlementHandler{Service: &services.EntitlementService{Repo: newTestRepo()}}

	cases := []string{
		`{"book_id": 0, "cost": 1}`,
		`{"book_id": 1, "cost": -2}`,
		`not json`,
	}
	for _, body := range cases {
		w := httptest.NewRecorder()
		h.RedeemBook(w, authedRequest(http.MethodPost, "/books/redeem", body, 7))
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status got %d want 400", body, w.Code)
		}
	}
}

type fakeLedger struct {
	records []models.PaymentRecord
}

func (f *fakeLedger) HistoryByUserID(ctx context.Context, userID int) ([]models.PaymentRecord, error) {
	var out []models.PaymentRecord
	for _, rec := range f.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeLedger) TransactionByID(ctx context.Context, transactionID string) (models.PaymentRecord, error) {
	for i := len(f.records) - 1; i >= 0; i-- {
		if f.records[i].TransactionID == transactionID {
			return f.records[i], nil
		}
	}
	return models.PaymentRecord{}, models.ErrNoRecord
}

func (f *fakeLedger) TransactionGranted(ctx context.Context, transactionID string) (bool, error) {
	for _, rec := range f.records {
		if rec.TransactionID == transactionID && rec.Outcome == models.PaymentOutcomeGranted {
			return true, nil
		}
	}
	return false, nil
}

func TestPaymentHistory(t *testing.T) {
	ledger := &fakeLedger{records: []models.PaymentRecord{
		{UserID: 7, ProductID: "com.pluralsight.10bookbucks", TransactionID: "tx-1", Outcome: models.PaymentOutcomeGranted},
		{UserID: 9, ProductID: "com.pluralsight.10bookbucks", TransactionID: "tx-2", Outcome: models.PaymentOutcomeGranted},
	}}
	h := &EntitlementHandler{Service: &services.EntitlementService{Repo: newTestRepo()}, History: ledger}

	w := httptest.NewRecorder()
	h.PaymentHistory(w, authedRequest(http.MethodGet, "/payments/history", "", 7))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body=%s", w.Code, w.Body.String())
	}
	var records []models.PaymentRecord
	if err := json.NewDecoder(w.Body).Decode(&records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].TransactionID != "tx-1" {
		t.Errorf("history must only contain the caller's rows: %+v", records)
	}
}

func TestTransactionStatus(t *testing.T) {
	ledger := &fakeLedger{records: []models.PaymentRecord{
		{UserID: 7, ProductID: "com.pluralsight.10bookbucks", TransactionID: "tx-9", Outcome: models.PaymentOutcomeVerifyFailed},
		{UserID: 7, ProductID: "com.pluralsight.10bookbucks", TransactionID: "tx-9", Outcome: models.PaymentOutcomeGranted},
		{UserID: 7, ProductID: "com.pluralsight.season1pass", TransactionID: "tx-5", StatusCode: 21003, Outcome: models.PaymentOutcomeRejected},
	}}
	h := &EntitlementHandler{Service: &services.EntitlementService{Repo: newTestRepo()}, History: ledger}

	w := httptest.NewRecorder()
	h.TransactionStatus(w, authedRequest(http.MethodGet, "/payments/transactions/tx-9?:id=tx-9", "", 7))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		TransactionID string `json:"transaction_id"`
		Outcome       string `json:"outcome"`
		Granted       bool   `json:"granted"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TransactionID != "tx-9" || !resp.Granted {
		t.Errorf("granted transaction mismatch: %+v", resp)
	}

	w = httptest.NewRecorder()
	h.TransactionStatus(w, authedRequest(http.MethodGet, "/payments/transactions/tx-5?:id=tx-5", "", 7))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body=%s", w.Code, w.Body.String())
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Granted {
		t.Error("rejected transaction must not report a grant")
	}
}

func TestTransactionStatus_NotFound(t *testing.T) {
	ledger := &fakeLedger{records: []models.PaymentRecord{
		{UserID: 9, ProductID: "com.pluralsight.10bookbucks", TransactionID: "tx-9", Outcome: models.PaymentOutcomeGranted},
	}}
	h := &EntitlementHandler{Service: &services.EntitlementService{Repo: newTestRepo()}, History: ledger}

	// Unknown id, and another user's transaction, both read as absent.
	for _, txID := range []string{"tx-404", "tx-9"} {
		w := httptest.NewRecorder()
		h.TransactionStatus(w, authedRequest(http.MethodGet, "/payments/transactions/"+txID+"?:id="+txID, "", 7))
		if w.Code != http.StatusNotFound {
			t.Errorf("tx %q: status got %d want 404", txID, w.Code)
		}
	}

	w := httptest.NewRecorder()
	h.TransactionStatus(w, authedRequest(http.MethodGet, "/payments/transactions/tx-9?:id=tx-9", "", 0))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d want 401", w.Code)
	}
}

func TestSyncFromCloud_WithoutMirror(t *testing.T) {
	h := &EntitlementHandler{Service: &services.EntitlementService{Repo: newTestRepo()}}

	w := httptest.NewRecorder()
	h.SyncFromCloud(w, authedRequest(http.MethodPost, "/entitlements/sync", "", 7))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d want 503", w.Code)
	}
}
