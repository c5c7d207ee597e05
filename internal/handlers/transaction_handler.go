package handlers

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"bookstoreBack/internal/models"
	"bookstoreBack/internal/queue"
	"bookstoreBack/internal/repositories"
	"bookstoreBack/internal/services"
)

// TransactionHandler receives payment-queue notifications from devices and
// feeds them to the coordinator. Devices repost notifications they got no
// 2xx for, so intake must stay cheap and never wait on verification.
type TransactionHandler struct {
	Queue    *queue.Queue
	Receipts *services.ReceiptService
	Tokens   *repositories.DeviceTokenRepository
}

// NotifyTransactions accepts a batch of transaction states, optionally
// together with the device's current receipt blob.
func (h *TransactionHandler) NotifyTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("user_id").(int)
	if userID == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ReceiptData  string `json:"receipt_data,omitempty"`
		Transactions []struct {
			ProductID     string `json:"product_id"`
			TransactionID string `json:"transaction_id,omitempty"`
			State         string `json:"state"`
			Error         string `json:"error,omitempty"`
		} `json:"transactions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.ReceiptData) != "" {
		blob, err := base64.StdEncoding.DecodeString(req.ReceiptData)
		if err != nil {
			http.Error(w, "receipt_data is not valid base64", http.StatusBadRequest)
			return
		}
		if err := h.Receipts.StoreReceipt(r.Context(), userID, blob); err != nil {
			log.Printf("[QUEUE] cache receipt user=%d: %v", userID, err)
			http.Error(w, "failed to store receipt", http.StatusInternalServerError)
			return
		}
	}

	txs := make([]models.Transaction, 0, len(req.Transactions))
	for _, t := range req.Transactions {
		state, err := models.ParseTransactionState(t.State)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		productID := strings.TrimSpace(t.ProductID)
		if productID == "" && state != models.TransactionFailed {
			http.Error(w, "product_id is required", http.StatusBadRequest)
			return
		}
		txs = append(txs, models.Transaction{
			UserID:        userID,
			ProductID:     productID,
			TransactionID: strings.TrimSpace(t.TransactionID),
			State:         state,
			Error:         t.Error,
		})
	}

	if len(txs) > 0 {
		h.Queue.Publish(txs...)
	}
	log.Printf("[QUEUE] accepted %d transactions user=%d receipt=%v",
		len(txs), userID, req.ReceiptData != "")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]int{"accepted": len(txs)})
}

// RegisterDeviceToken stores an FCM token for cross-device sync nudges.
func (h *TransactionHandler) RegisterDeviceToken(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("user_id").(int)
	if userID == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if h.Tokens == nil {
		http.Error(w, "device tokens are not configured", http.StatusNotImplemented)
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	if err := h.Tokens.SaveToken(r.Context(), userID, req.Token); err != nil {
		http.Error(w, "failed to save token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
