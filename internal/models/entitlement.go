package models

import "time"

// Product identifiers from the storefront catalog. These must match the App
// Store Connect configuration exactly and are never renamed server-side.
const (
	SixMonthSubscriptionProductID = "com.pluralsight.6monthsubscription"
	TenBookBucksProductID         = "com.pluralsight.10bookbucks"
	AnnualSubscriptionProductID   = "com.pluralsight.annualsubscription"
	BoundlessBibliophileProductID = "com.pluralsight.boundlessbibliophile"
	SeasonOnePassProductID        = "com.pluralsight.season1pass"
)

// TenBookBucksGrant is the fixed amount of book bucks granted per purchase
// of the consumable currency product.
const TenBookBucksGrant = 10.0

// KnownProductIDs lists every purchasable product the resolver understands.
var KnownProductIDs = map[string]struct{}{
	SixMonthSubscriptionProductID: {},
	TenBookBucksProductID:         {},
	AnnualSubscriptionProductID:   {},
	BoundlessBibliophileProductID: {},
	SeasonOnePassProductID:        {},
}

// Season one runs 2020-03-14 through 2020-06-28 inclusive. Holding the pass
// outside the window grants nothing, so pass usability is recomputed at read
// time rather than stored.
var (
	seasonOneStart = time.Date(2020, time.March, 14, 0, 0, 0, 0, time.UTC)
	seasonOneEnd   = time.Date(2020, time.June, 29, 0, 0, 0, 0, time.UTC)
)

// SeasonOneIsLive reports whether the given moment falls inside the season
// one content window.
func SeasonOneIsLive(now time.Time) bool {
	return !now.Before(seasonOneStart) && now.Before(seasonOneEnd)
}

// Entitlement is the durable record of what a user has unlocked. Flags are
// derived facts cached from the latest verification; only the entitlement
// resolver writes them.
type Entitlement struct {
	BookBucks    float64 `json:"book_bucks"`
	OwnedBookIDs []int   `json:"owned_book_ids"`

	// Raw purchase flag for the season one pass; usability additionally
	// depends on the calendar window.
	SeasonOnePassHolder bool `json:"season_one_pass_holder"`
	SeasonOnePassUsable bool `json:"season_one_pass_usable"`

	SixMonthSubscriptionActive bool `json:"six_month_subscription_active"`
	AnnualSubscriptionActive   bool `json:"annual_subscription_active"`

	// Lifetime all-access. Once true, never reset.
	BoundlessBibliophile bool `json:"boundless_bibliophile"`
}

// OwnsBook reports whether the book id has been redeemed.
func (e Entitlement) OwnsBook(bookID int) bool {
	for _, id := range e.OwnedBookIDs {
		if id == bookID {
			return true
		}
	}
	return false
}
