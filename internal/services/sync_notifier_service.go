package services

import (
	"context"
	"errors"
	"log"

	"firebase.google.com/go/messaging"

	"bookstoreBack/internal/models"
	"bookstoreBack/internal/repositories"
)

// SyncNotifierService sends silent pushes to the user's other devices so
// they reconcile entitlement state from the cloud mirror, and asks devices
// to re-upload their receipt when the backend has none cached. Everything
// here is best-effort.
type SyncNotifierService struct {
	Client *messaging.Client
	Tokens *repositories.DeviceTokenRepository
}

func (s *SyncNotifierService) EntitlementsUpdated(ctx context.Context, userID int) {
	s.send(ctx, userID, map[string]string{"type": "entitlements_updated"})
}

// RequestReceiptUpload implements the refresh side of receipt acquisition.
func (s *SyncNotifierService) RequestReceiptUpload(ctx context.Context, userID int) error {
	s.send(ctx, userID, map[string]string{"type": "receipt_requested"})
	return nil
}

func (s *SyncNotifierService) send(ctx context.Context, userID int, data map[string]string) {
	if s.Client == nil || s.Tokens == nil {
		return
	}
	tokens, err := s.Tokens.TokensByUserID(ctx, userID)
	if err != nil {
		log.Printf("[FCM] load tokens user=%d: %v", userID, err)
		return
	}
	for _, token := range tokens {
		msg := &messaging.Message{
			Token: token,
			Data:  data,
			Android: &messaging.AndroidConfig{
				Priority: "high",
			},
			APNS: &messaging.APNSConfig{
				Headers: map[string]string{
					"apns-priority":  "5",
					"apns-push-type": "background",
				},
				Payload: &messaging.APNSPayload{
					Aps: &messaging.Aps{
						ContentAvailable: true,
					},
				},
			},
		}
		if _, err := s.Client.Send(ctx, msg); err != nil {
			log.Printf("[FCM] send user=%d: %v", userID, err)
			if messaging.IsRegistrationTokenNotRegistered(err) {
				// Concurrent sends may race on the same stale token.
				if err := s.Tokens.DeleteToken(ctx, token); err != nil && !errors.Is(err, models.ErrDeviceTokenNotFound) {
					log.Printf("[FCM] delete stale token: %v", err)
				}
			}
		}
	}
}
