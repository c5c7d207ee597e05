package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// The verification authority formats dates as "2020-03-14 18:25:43 Etc/GMT".
// "Etc/GMT" is not a zone abbreviation time.Parse understands, so it is
// matched literally (the zone is always GMT); the abbreviation layout is the
// fallback for the rare "... GMT" form.
const (
	receiptDateLayout     = "2006-01-02 15:04:05 Etc/GMT"
	receiptDateZoneLayout = "2006-01-02 15:04:05 MST"
)

// ReceiptDate wraps time.Time with strict parsing of the authority's date
// format. A date that does not match the layout fails the whole decode
// instead of silently defaulting.
type ReceiptDate struct {
	time.Time
}

func (d *ReceiptDate) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, err := time.Parse(receiptDateLayout, raw)
	if err != nil {
		t, err = time.Parse(receiptDateZoneLayout, raw)
	}
	if err != nil {
		return fmt.Errorf("receipt date %q: %w", raw, err)
	}
	d.Time = t
	return nil
}

func (d ReceiptDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(receiptDateLayout))
}

// ValidationResult is the decoded response body of the verification
// authority. Server fields are snake_case.
// https://developer.apple.com/documentation/appstorereceipts/responsebody
type ValidationResult struct {
	Environment        string                 `json:"environment"`
	LatestReceipt      string                 `json:"latest_receipt"`
	LatestReceiptInfo  []InAppPurchaseRecord  `json:"latest_receipt_info"`
	PendingRenewalInfo []PendingRenewalRecord `json:"pending_renewal_info"`
	Receipt            Receipt                `json:"receipt"`
	Status             int                    `json:"status"`
}

// StatusDescription maps the raw status integer onto the authority's
// documented taxonomy. Unrecognized codes map to ReceiptStatusUnknown.
func (r ValidationResult) StatusDescription() ReceiptStatus {
	switch r.Status {
	case 0:
		return ReceiptStatusValid
	case 21000:
		return ReceiptStatusRequestNotPost
	case 21002:
		return ReceiptStatusMalformedReceipt
	case 21003:
		return ReceiptStatusNotAuthenticated
	case 21004:
		return ReceiptStatusSharedSecretMismatch
	case 21005:
		return ReceiptStatusServerUnavailable
	case 21006:
		return ReceiptStatusSubscriptionExpired
	case 21007:
		return ReceiptStatusSandboxReceiptToProd
	case 21008:
		return ReceiptStatusProdReceiptToSandbox
	case 21009:
		return ReceiptStatusInternalError
	case 21010:
		return ReceiptStatusAccountNotFound
	default:
		return ReceiptStatusUnknown
	}
}

// GrantsEntitlement reports whether the result may be used to unlock
// one-time content. Only a fully valid receipt qualifies.
func (r ValidationResult) GrantsEntitlement() bool {
	return r.StatusDescription() == ReceiptStatusValid
}

// ReceiptUsable reports whether the embedded receipt body can be trusted.
// 21006 (expired legacy subscription) is the single failure status that
// still carries a decoded receipt; every other nonzero status means the
// receipt must not be used.
func (r ValidationResult) ReceiptUsable() bool {
	s := r.StatusDescription()
	return s == ReceiptStatusValid || s == ReceiptStatusSubscriptionExpired
}

// Receipt is the decoded receipt body returned by the authority.
type Receipt struct {
	BundleID                   string                `json:"bundle_id"`
	ApplicationVersion         string                `json:"application_version"`
	OriginalApplicationVersion string                `json:"original_application_version"`
	ReceiptType                string                `json:"receipt_type"`
	InApp                      []InAppPurchaseRecord `json:"in_app"`
	ReceiptCreationDate        ReceiptDate           `json:"receipt_creation_date"`
	RequestDate                ReceiptDate           `json:"request_date"`
	ExpirationDate             *ReceiptDate          `json:"expiration_date,omitempty"`
}

// InAppPurchaseRecord is a single purchase entry, either from the receipt
// body (in_app) or from latest_receipt_info. A record with a non-nil
// CancellationDate never grants entitlement.
type InAppPurchaseRecord struct {
	ProductID             string       `json:"product_id"`
	TransactionID         string       `json:"transaction_id"`
	OriginalTransactionID string       `json:"original_transaction_id"`
	Quantity              string       `json:"quantity"`
	PurchaseDate          ReceiptDate  `json:"purchase_date"`
	OriginalPurchaseDate  ReceiptDate  `json:"original_purchase_date"`
	ExpiresDate           *ReceiptDate `json:"expires_date,omitempty"`
	CancellationDate      *ReceiptDate `json:"cancellation_date,omitempty"`
	CancellationReason    string       `json:"cancellation_reason,omitempty"`
	IsTrialPeriod         string       `json:"is_trial_period,omitempty"`
	WebOrderLineItemID    string       `json:"web_order_line_item_id,omitempty"`
}

// PendingRenewalRecord carries renewal intent flags per auto-renewing product.
type PendingRenewalRecord struct {
	ProductID             string `json:"product_id"`
	AutoRenewProductID    string `json:"auto_renew_product_id,omitempty"`
	AutoRenewStatus       string `json:"auto_renew_status"`
	ExpirationIntent      string `json:"expiration_intent,omitempty"`
	OriginalTransactionID string `json:"original_transaction_id"`
	IsInBillingRetry      string `json:"is_in_billing_retry_period,omitempty"`
}

// ReceiptStatus enumerates the authority's status code taxonomy.
// https://developer.apple.com/documentation/appstorereceipts/status
type ReceiptStatus int

const (
	ReceiptStatusValid ReceiptStatus = 0

	// The request to the authority was not made using HTTP POST.
	ReceiptStatusRequestNotPost ReceiptStatus = 21000

	// The receipt-data property was malformed or the service had a
	// temporary issue. Retryable.
	ReceiptStatusMalformedReceipt ReceiptStatus = 21002

	// The receipt could not be authenticated.
	ReceiptStatusNotAuthenticated ReceiptStatus = 21003

	// The shared secret does not match the one on file.
	ReceiptStatusSharedSecretMismatch ReceiptStatus = 21004

	// The receipt server was temporarily unavailable. Retryable.
	ReceiptStatusServerUnavailable ReceiptStatus = 21005

	// Valid receipt, expired subscription. Legacy iOS 6-style receipts
	// only; the receipt data is still decoded and returned.
	ReceiptStatusSubscriptionExpired ReceiptStatus = 21006

	// Sandbox receipt sent to the production environment.
	ReceiptStatusSandboxReceiptToProd ReceiptStatus = 21007

	// Production receipt sent to the sandbox environment.
	ReceiptStatusProdReceiptToSandbox ReceiptStatus = 21008

	// Internal data access error. Retryable.
	ReceiptStatusInternalError ReceiptStatus = 21009

	// The user account cannot be found or has been deleted.
	ReceiptStatusAccountNotFound ReceiptStatus = 21010

	ReceiptStatusUnknown ReceiptStatus = -1
)

func (s ReceiptStatus) String() string {
	switch s {
	case ReceiptStatusValid:
		return "valid"
	case ReceiptStatusRequestNotPost:
		return "request_not_post"
	case ReceiptStatusMalformedReceipt:
		return "malformed_receipt"
	case ReceiptStatusNotAuthenticated:
		return "not_authenticated"
	case ReceiptStatusSharedSecretMismatch:
		return "shared_secret_mismatch"
	case ReceiptStatusServerUnavailable:
		return "server_unavailable"
	case ReceiptStatusSubscriptionExpired:
		return "subscription_expired"
	case ReceiptStatusSandboxReceiptToProd:
		return "sandbox_receipt_to_prod"
	case ReceiptStatusProdReceiptToSandbox:
		return "prod_receipt_to_sandbox"
	case ReceiptStatusInternalError:
		return "internal_error"
	case ReceiptStatusAccountNotFound:
		return "account_not_found"
	default:
		return "unknown"
	}
}
