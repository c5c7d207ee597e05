package services

import (
	"context"
	"log"
	"time"

	"bookstoreBack/internal/models"
	"bookstoreBack/internal/repositories"
)

// EntitlementService holds every product-specific business rule: currency
// top-ups, one-time unlocks, season windowing and auto-renewing
// subscription expiry. It is the only writer of entitlement flags.
type EntitlementService struct {
	Repo *repositories.EntitlementRepository
}

// Handle applies the verification result for the purchased product to the
// user's entitlement. It fails closed: a result whose status is not 0 (or
// 21006, whose receipt is still decodable for subscription expiry) changes
// nothing. Handle is never called for transport or decode failures — the
// coordinator retries those paths instead.
func (s *EntitlementService) Handle(ctx context.Context, userID int, productID string, result models.ValidationResult) error {
	if _, ok := models.KnownProductIDs[productID]; !ok {
		return models.ErrUnknownProduct
	}

	if !result.ReceiptUsable() {
		log.Printf("[IAP] fail closed user=%d product=%q status=%d (%s)",
			userID, productID, result.Status, result.StatusDescription())
		return nil
	}

	switch productID {
	case models.TenBookBucksProductID:
		if !result.GrantsEntitlement() {
			return nil
		}
		return s.grantBookBucks(ctx, userID, result)

	case models.SeasonOnePassProductID:
		if result.GrantsEntitlement() && containsProduct(result.Receipt.InApp, productID) {
			return s.Repo.SetSeasonOnePassHolder(ctx, userID, true)
		}
		return nil

	case models.BoundlessBibliophileProductID:
		if result.GrantsEntitlement() && containsProduct(result.Receipt.InApp, productID) {
			return s.Repo.SetBoundlessBibliophile(ctx, userID, true)
		}
		return nil

	case models.SixMonthSubscriptionProductID:
		return s.resolveSubscription(ctx, userID, productID, result, s.Repo.SetSixMonthSubscriberActive)

	case models.AnnualSubscriptionProductID:
		return s.resolveSubscription(ctx, userID, productID, result, s.Repo.SetAnnualSubscriberActive)
	}
	return nil
}

// grantBookBucks credits the fixed grant once per transaction id. Replays
// of an already consumed transaction are skipped, so processing the same
// verification result twice never double-grants. A transaction is only
// marked consumed after its credit landed; a failed credit surfaces and
// the next restore retries the grant.
func (s *EntitlementService) grantBookBucks(ctx context.Context, userID int, result models.ValidationResult) error {
	for _, rec := range result.Receipt.InApp {
		if rec.ProductID != models.TenBookBucksProductID || rec.CancellationDate != nil {
			continue
		}
		balance, fresh, err := s.Repo.ConsumeTransactionGrant(ctx, userID, rec.TransactionID, models.TenBookBucksGrant)
		if err != nil {
			return err
		}
		if !fresh {
			log.Printf("[IAP] replayed transaction user=%d tx=%s, skipping grant", userID, rec.TransactionID)
			continue
		}
		log.Printf("[IAP] granted %v book bucks user=%d tx=%s balance=%v",
			models.TenBookBucksGrant, userID, rec.TransactionID, balance)
	}
	return nil
}

// resolveSubscription recomputes the active flag from the most recent
// renewal records and replaces the stored value. The previous flag never
// influences the outcome, so an expired chain deactivates even if an
// earlier result had activated it.
func (s *EntitlementService) resolveSubscription(ctx context.Context, userID int, productID string, result models.ValidationResult, set func(context.Context, int, bool) error) error {
	records := result.LatestReceiptInfo
	if len(records) == 0 {
		records = result.Receipt.InApp
	}

	var best time.Time
	found := false
	for _, rec := range records {
		if rec.ProductID != productID || rec.CancellationDate != nil || rec.ExpiresDate == nil {
			continue
		}
		if !found || rec.ExpiresDate.After(best) {
			best = rec.ExpiresDate.Time
			found = true
		}
	}

	active := found && best.After(time.Now())
	return set(ctx, userID, active)
}

func containsProduct(records []models.InAppPurchaseRecord, productID string) bool {
	for _, rec := range records {
		if rec.ProductID == productID && rec.CancellationDate == nil {
			return true
		}
	}
	return false
}

// RedeemBook spends book bucks on a title and adds it to the owned set.
// The two fields are written sequentially, not atomically; a crash between
// them leaves the bucks spent without the book, same as the client-side
// implementation this replaces.
func (s *EntitlementService) RedeemBook(ctx context.Context, userID, bookID int, cost float64) (models.Entitlement, error) {
	if _, err := s.Repo.SpendBookBucks(ctx, userID, cost); err != nil {
		return s.Repo.Entitlement(ctx, userID), err
	}
	if err := s.Repo.AppendOwnedBookID(ctx, userID, bookID); err != nil {
		return s.Repo.Entitlement(ctx, userID), err
	}
	return s.Repo.Entitlement(ctx, userID), nil
}

// Entitlements returns the user's current entitlement snapshot.
func (s *EntitlementService) Entitlements(ctx context.Context, userID int) models.Entitlement {
	return s.Repo.Entitlement(ctx, userID)
}

// SyncFromCloud reconciles local state from the cloud mirror on demand.
func (s *EntitlementService) SyncFromCloud(ctx context.Context, userID int) error {
	return s.Repo.ReconcileFromMirror(ctx, userID)
}
