package repositories

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
)

// CloudMirrorRepository replicates entitlement fields to a Firestore
// document per user. Replication is best-effort: callers fire writes
// asynchronously and drop errors after logging. Reconciliation is a blind
// overwrite of local fields from the mirror, so last writer wins across
// devices with no merge of concurrent increments.
type CloudMirrorRepository struct {
	Client     *firestore.Client
	Collection string
}

func NewCloudMirrorRepository(client *firestore.Client, collection string) *CloudMirrorRepository {
	if collection == "" {
		collection = "entitlements"
	}
	return &CloudMirrorRepository{Client: client, Collection: collection}
}

func (r *CloudMirrorRepository) doc(userID int) *firestore.DocumentRef {
	return r.Client.Collection(r.Collection).Doc(fmt.Sprintf("user-%d", userID))
}

// Firestore field paths treat dots as separators, so the keychain-style key
// names are stored with dots swapped for colons.
func mirrorField(key string) string {
	return strings.ReplaceAll(key, ".", ":")
}

func localField(field string) string {
	return strings.ReplaceAll(field, ":", ".")
}

// Write upserts a single field on the user's mirror document.
func (r *CloudMirrorRepository) Write(ctx context.Context, userID int, key, value string) error {
	_, err := r.doc(userID).Set(ctx, map[string]interface{}{
		mirrorField(key): value,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("cloud mirror: write %s: %w", key, err)
	}
	return nil
}

// ReadAll returns every mirrored field for the user. A missing document
// reads as empty.
func (r *CloudMirrorRepository) ReadAll(ctx context.Context, userID int) (map[string]string, error) {
	snap, err := r.doc(userID).Get(ctx)
	if err != nil {
		if snap != nil && !snap.Exists() {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("cloud mirror: read user %d: %w", userID, err)
	}
	fields := make(map[string]string)
	for field, v := range snap.Data() {
		if s, ok := v.(string); ok {
			fields[localField(field)] = s
		}
	}
	return fields, nil
}
