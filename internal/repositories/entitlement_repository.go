package repositories

import (
	"context"
	"encoding/base64"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"bookstoreBack/internal/models"
)

// Secure storage keys, one per entitlement field. The names match the
// mobile client's keychain keys so mirrored values line up across devices.
const (
	KeyOwnedBookBucks           = "com.pluralsight.ownedBookBucks"
	KeyOwnedBookIDs             = "com.pluralsight.ownedBookIds"
	KeyActiveSeason1Passholder  = "com.pluralsight.activeSeason1Passholder"
	KeyActiveSixMonthSubscriber = "com.pluralsight.activeSixMonthSubscriber"
	KeyActiveAnnualSubscriber   = "com.pluralsight.activeAnnualSubscriber"
	KeyBoundlessBibliophile     = "com.pluralsight.boundlessBibliophile"
	KeyConsumedTransactionIDs   = "com.pluralsight.consumedTransactionIds"
	KeyAppStoreReceipt          = "com.pluralsight.appStoreReceipt"
)

// mirroredKeys lists the fields replicated to the cloud mirror. The raw
// receipt blob stays local to the device that uploaded it.
var mirroredKeys = []string{
	KeyOwnedBookBucks,
	KeyOwnedBookIDs,
	KeyActiveSeason1Passholder,
	KeyActiveSixMonthSubscriber,
	KeyActiveAnnualSubscriber,
	KeyBoundlessBibliophile,
	KeyConsumedTransactionIDs,
}

const mirrorWriteTimeout = 5 * time.Second

// SecretStore is the encrypted key-value storage collaborator.
type SecretStore interface {
	Read(ctx context.Context, key string) (string, bool, error)
	Write(ctx context.Context, key, value string) error
}

// CloudMirror is the cross-device replication collaborator.
type CloudMirror interface {
	Write(ctx context.Context, userID int, key, value string) error
	ReadAll(ctx context.Context, userID int) (map[string]string, error)
}

// EntitlementRepository exposes typed get/set access to the entitlement
// fields. Reads fall back to the documented defaults (0, empty, false) when
// a field is absent or the store fails; writes go to the secure store first
// and are mirrored to the cloud asynchronously, best-effort.
//
// Read-modify-write operations serialize on a per-user-per-field mutex so
// concurrent resolver callbacks cannot lose updates.
type EntitlementRepository struct {
	Store    SecretStore
	Mirror   CloudMirror // optional
	ErrorLog *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEntitlementRepository(store SecretStore, mirror CloudMirror, errorLog *log.Logger) *EntitlementRepository {
	return &EntitlementRepository{
		Store:    store,
		Mirror:   mirror,
		ErrorLog: errorLog,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (r *EntitlementRepository) errorf(format string, args ...interface{}) {
	if r.ErrorLog != nil {
		r.ErrorLog.Printf(format, args...)
	} else {
		log.Printf(format, args...)
	}
}

func userKey(userID int, key string) string {
	return strconv.Itoa(userID) + ":" + key
}

func (r *EntitlementRepository) fieldLock(userID int, key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locks == nil {
		r.locks = make(map[string]*sync.Mutex)
	}
	k := userKey(userID, key)
	l, ok := r.locks[k]
	if !ok {
		l = &sync.Mutex{}
		r.locks[k] = l
	}
	return l
}

// readString returns the stored value or absent. A storage error is logged
// and treated as absent so a flaky store degrades to defaults instead of
// crashing the coordinator.
func (r *EntitlementRepository) readString(ctx context.Context, userID int, key string) (string, bool) {
	value, ok, err := r.Store.Read(ctx, userKey(userID, key))
	if err != nil {
		r.errorf("[STORE] read %s user=%d: %v", key, userID, err)
		return "", false
	}
	return value, ok
}

func (r *EntitlementRepository) writeString(ctx context.Context, userID int, key, value string) error {
	if err := r.Store.Write(ctx, userKey(userID, key), value); err != nil {
		return err
	}
	r.mirrorWrite(userID, key, value)
	return nil
}

// mirrorWrite replicates one field to the cloud, fire-and-forget. A failed
// mirror write is logged and dropped; the reconciler catches up later.
func (r *EntitlementRepository) mirrorWrite(userID int, key, value string) {
	if r.Mirror == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorWriteTimeout)
		defer cancel()
		if err := r.Mirror.Write(ctx, userID, key, value); err != nil {
			r.errorf("[MIRROR] write %s user=%d: %v", key, userID, err)
		}
	}()
}

// ---- Book bucks -------------------------------------------------------------

func (r *EntitlementRepository) BookBucks(ctx context.Context, userID int) float64 {
	raw, ok := r.readString(ctx, userID, KeyOwnedBookBucks)
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.errorf("[STORE] malformed book bucks for user=%d: %q", userID, raw)
		return 0
	}
	return v
}

func (r *EntitlementRepository) setBookBucks(ctx context.Context, userID int, v float64) error {
	if v < 0 {
		v = 0
	}
	return r.writeString(ctx, userID, KeyOwnedBookBucks, strconv.FormatFloat(v, 'f', -1, 64))
}

// AddBookBucks increments the balance and returns the new value.
func (r *EntitlementRepository) AddBookBucks(ctx context.Context, userID int, delta float64) (float64, error) {
	lock := r.fieldLock(userID, KeyOwnedBookBucks)
	lock.Lock()
	defer lock.Unlock()

	balance := r.BookBucks(ctx, userID) + delta
	if err := r.setBookBucks(ctx, userID, balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// SpendBookBucks deducts cost if the balance covers it. Returns the balance
// after the call and ErrInsufficientBucks when it does not.
func (r *EntitlementRepository) SpendBookBucks(ctx context.Context, userID int, cost float64) (float64, error) {
	lock := r.fieldLock(userID, KeyOwnedBookBucks)
	lock.Lock()
	defer lock.Unlock()

	balance := r.BookBucks(ctx, userID)
	if balance < cost {
		return balance, models.ErrInsufficientBucks
	}
	balance -= cost
	if err := r.setBookBucks(ctx, userID, balance); err != nil {
		return balance, err
	}
	return balance, nil
}

// ---- Owned book ids ---------------------------------------------------------

func (r *EntitlementRepository) OwnedBookIDs(ctx context.Context, userID int) []int {
	raw, ok := r.readString(ctx, userID, KeyOwnedBookIDs)
	if !ok || raw == "" {
		return []int{}
	}
	parts := strings.Split(raw, ",")
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// AppendOwnedBookID adds a book to the owned set. The set only grows.
func (r *EntitlementRepository) AppendOwnedBookID(ctx context.Context, userID, bookID int) error {
	lock := r.fieldLock(userID, KeyOwnedBookIDs)
	lock.Lock()
	defer lock.Unlock()

	ids := r.OwnedBookIDs(ctx, userID)
	for _, id := range ids {
		if id == bookID {
			return nil
		}
	}
	ids = append(ids, bookID)
	return r.writeString(ctx, userID, KeyOwnedBookIDs, joinIDs(ids))
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// ---- Flags ------------------------------------------------------------------

func (r *EntitlementRepository) readBool(ctx context.Context, userID int, key string) bool {
	raw, ok := r.readString(ctx, userID, key)
	if !ok {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return v
}

func (r *EntitlementRepository) writeBool(ctx context.Context, userID int, key string, v bool) error {
	lock := r.fieldLock(userID, key)
	lock.Lock()
	defer lock.Unlock()
	return r.writeString(ctx, userID, key, strconv.FormatBool(v))
}

func (r *EntitlementRepository) SeasonOnePassHolder(ctx context.Context, userID int) bool {
	return r.readBool(ctx, userID, KeyActiveSeason1Passholder)
}

func (r *EntitlementRepository) SetSeasonOnePassHolder(ctx context.Context, userID int, v bool) error {
	return r.writeBool(ctx, userID, KeyActiveSeason1Passholder, v)
}

func (r *EntitlementRepository) SixMonthSubscriberActive(ctx context.Context, userID int) bool {
	return r.readBool(ctx, userID, KeyActiveSixMonthSubscriber)
}

func (r *EntitlementRepository) SetSixMonthSubscriberActive(ctx context.Context, userID int, v bool) error {
	return r.writeBool(ctx, userID, KeyActiveSixMonthSubscriber, v)
}

func (r *EntitlementRepository) AnnualSubscriberActive(ctx context.Context, userID int) bool {
	return r.readBool(ctx, userID, KeyActiveAnnualSubscriber)
}

func (r *EntitlementRepository) SetAnnualSubscriberActive(ctx context.Context, userID int, v bool) error {
	return r.writeBool(ctx, userID, KeyActiveAnnualSubscriber, v)
}

func (r *EntitlementRepository) BoundlessBibliophile(ctx context.Context, userID int) bool {
	return r.readBool(ctx, userID, KeyBoundlessBibliophile)
}

// SetBoundlessBibliophile only ever turns the lifetime flag on.
func (r *EntitlementRepository) SetBoundlessBibliophile(ctx context.Context, userID int, v bool) error {
	if !v {
		return nil
	}
	return r.writeBool(ctx, userID, KeyBoundlessBibliophile, true)
}

// ---- Consumed transactions --------------------------------------------------

// ConsumeTransactionGrant credits grant book bucks once per transaction id
// and records the id in the consumed set. The set lock is held across the
// balance write and the id is recorded only after the credit landed, so a
// failed credit leaves the transaction unconsumed and a later restore
// retries the grant. Returns the new balance, and false when the id was
// already consumed.
func (r *EntitlementRepository) ConsumeTransactionGrant(ctx context.Context, userID int, transactionID string, grant float64) (float64, bool, error) {
	if transactionID == "" {
		return 0, false, nil
	}
	lock := r.fieldLock(userID, KeyConsumedTransactionIDs)
	lock.Lock()
	defer lock.Unlock()

	raw, _ := r.readString(ctx, userID, KeyConsumedTransactionIDs)
	if raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id == transactionID {
				return 0, false, nil
			}
		}
		raw += ","
	}
	raw += transactionID

	balance, err := r.AddBookBucks(ctx, userID, grant)
	if err != nil {
		return 0, false, err
	}
	if err := r.writeString(ctx, userID, KeyConsumedTransactionIDs, raw); err != nil {
		// The credit already landed; a replay can double-grant until the
		// mark write goes through.
		r.errorf("[STORE] mark consumed user=%d tx=%s: %v", userID, transactionID, err)
	}
	return balance, true, nil
}

// ---- Receipt cache ----------------------------------------------------------

// Receipt returns the latest receipt blob uploaded by one of the user's
// devices, if any.
func (r *EntitlementRepository) Receipt(ctx context.Context, userID int) ([]byte, bool) {
	raw, ok := r.readString(ctx, userID, KeyAppStoreReceipt)
	if !ok || raw == "" {
		return nil, false
	}
	blob, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		r.errorf("[STORE] malformed cached receipt for user=%d", userID)
		return nil, false
	}
	return blob, true
}

func (r *EntitlementRepository) SetReceipt(ctx context.Context, userID int, blob []byte) error {
	lock := r.fieldLock(userID, KeyAppStoreReceipt)
	lock.Lock()
	defer lock.Unlock()
	return r.writeString(ctx, userID, KeyAppStoreReceipt, base64.StdEncoding.EncodeToString(blob))
}

// ---- Snapshot & reconcile ---------------------------------------------------

// Entitlement reads the full entitlement state. Season pass usability is
// recomputed from the calendar window at read time, never stored.
func (r *EntitlementRepository) Entitlement(ctx context.Context, userID int) models.Entitlement {
	holder := r.SeasonOnePassHolder(ctx, userID)
	return models.Entitlement{
		BookBucks:                  r.BookBucks(ctx, userID),
		OwnedBookIDs:               r.OwnedBookIDs(ctx, userID),
		SeasonOnePassHolder:        holder,
		SeasonOnePassUsable:        holder && models.SeasonOneIsLive(time.Now()),
		SixMonthSubscriptionActive: r.SixMonthSubscriberActive(ctx, userID),
		AnnualSubscriptionActive:   r.AnnualSubscriberActive(ctx, userID),
		BoundlessBibliophile:       r.BoundlessBibliophile(ctx, userID),
	}
}

// ReconcileFromMirror overwrites local fields with whatever the cloud
// mirror holds. Blind last-writer-wins: two devices both spending bucks
// between syncs can lose one decrement. Accepted limitation.
func (r *EntitlementRepository) ReconcileFromMirror(ctx context.Context, userID int) error {
	if r.Mirror == nil {
		return models.ErrMirrorUnavailable
	}
	fields, err := r.Mirror.ReadAll(ctx, userID)
	if err != nil {
		return err
	}
	for _, key := range mirroredKeys {
		value, ok := fields[key]
		if !ok {
			continue
		}
		lock := r.fieldLock(userID, key)
		lock.Lock()
		err := r.Store.Write(ctx, userKey(userID, key), value)
		lock.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}
