package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"bookstoreBack/internal/models"
	"bookstoreBack/internal/services"
)

// PaymentHistory is the processed-transaction ledger the handler reads.
type PaymentHistory interface {
	HistoryByUserID(ctx context.Context, userID int) ([]models.PaymentRecord, error)
	TransactionByID(ctx context.Context, transactionID string) (models.PaymentRecord, error)
	TransactionGranted(ctx context.Context, transactionID string) (bool, error)
}

// EntitlementHandler exposes the entitlement state the storefront UI reads,
// the book redemption flow and on-demand cloud reconciliation.
type EntitlementHandler struct {
	Service *services.EntitlementService
	History PaymentHistory
}

// GetEntitlements returns the caller's entitlement snapshot.
func (h *EntitlementHandler) GetEntitlements(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("user_id").(int)
	if userID == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Service.Entitlements(r.Context(), userID))
}

// RedeemBook spends book bucks on a title.
func (h *EntitlementHandler) RedeemBook(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("user_id").(int)
	if userID == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		BookID int     `json:"book_id"`
		Cost   float64 `json:"cost"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.BookID <= 0 {
		http.Error(w, "book_id must be positive", http.StatusBadRequest)
		return
	}
	if req.Cost < 0 {
		http.Error(w, "cost must be non-negative", http.StatusBadRequest)
		return
	}

	entitlement, err := h.Service.RedeemBook(r.Context(), userID, req.BookID, req.Cost)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientBucks) {
			http.Error(w, "not enough book bucks", http.StatusPaymentRequired)
			return
		}
		http.Error(w, "failed to redeem book", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entitlement)
}

// SyncFromCloud pulls the cloud mirror over local state and returns the
// reconciled snapshot.
func (h *EntitlementHandler) SyncFromCloud(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("user_id").(int)
	if userID == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.Service.SyncFromCloud(r.Context(), userID); err != nil {
		if errors.Is(err, models.ErrMirrorUnavailable) {
			http.Error(w, "cloud mirror is not configured", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "failed to sync from cloud", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Service.Entitlements(r.Context(), userID))
}

// PaymentHistory returns the processed-transaction ledger for the caller.
func (h *EntitlementHandler) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("user_id").(int)
	if userID == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if h.History == nil {
		http.Error(w, "payment history is not configured", http.StatusNotImplemented)
		return
	}

	records, err := h.History.HistoryByUserID(r.Context(), userID)
	if err != nil {
		http.Error(w, "failed to load payment history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []models.PaymentRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// TransactionStatus reports the latest ledger outcome for one of the
// caller's transactions and whether a grant was ever recorded for it.
// Support uses it to reconcile purchases that failed verification.
func (h *EntitlementHandler) TransactionStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("user_id").(int)
	if userID == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if h.History == nil {
		http.Error(w, "payment history is not configured", http.StatusNotImplemented)
		return
	}
	txID := r.URL.Query().Get(":id")
	if txID == "" {
		http.Error(w, "transaction id is required", http.StatusBadRequest)
		return
	}

	rec, err := h.History.TransactionByID(r.Context(), txID)
	if errors.Is(err, models.ErrNoRecord) || (err == nil && rec.UserID != userID) {
		http.Error(w, "transaction was never processed", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to load transaction", http.StatusInternalServerError)
		return
	}
	granted, err := h.History.TransactionGranted(r.Context(), txID)
	if err != nil {
		http.Error(w, "failed to load transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		TransactionID string `json:"transaction_id"`
		ProductID     string `json:"product_id"`
		Outcome       string `json:"outcome"`
		StatusCode    int    `json:"status_code"`
		Granted       bool   `json:"granted"`
	}{txID, rec.ProductID, rec.Outcome, rec.StatusCode, granted})
}
