package main

import (
	"context"
	"errors"
	"log"
	"time"

	"bookstoreBack/internal/models"
	"bookstoreBack/internal/repositories"
	"bookstoreBack/internal/services"
)

const mirrorReconcileTimeout = 1 * time.Minute

// startMirrorReconciler periodically pulls the cloud mirror over local
// state for every user with a registered device, so a backend that missed
// fire-and-forget mirror writes converges anyway.
func startMirrorReconciler(ctx context.Context, entitlements *services.EntitlementService, tokens *repositories.DeviceTokenRepository, interval time.Duration, infoLog, errorLog *log.Logger) {
	if entitlements == nil || tokens == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		runOnce := func() {
			runCtx, cancel := context.WithTimeout(ctx, mirrorReconcileTimeout)
			defer cancel()

			userIDs, err := tokens.UserIDs(runCtx)
			if err != nil {
				errorLog.Printf("mirror reconciler: failed to list users: %v", err)
				return
			}

			reconciled := 0
			for _, id := range userIDs {
				if err := entitlements.SyncFromCloud(runCtx, id); err != nil {
					if errors.Is(err, models.ErrMirrorUnavailable) {
						return
					}
					errorLog.Printf("mirror reconciler: user %d: %v", id, err)
					continue
				}
				reconciled++
			}
			if reconciled > 0 {
				infoLog.Printf("mirror reconciler: refreshed %d users from the cloud mirror", reconciled)
			}
		}

		runOnce()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runOnce()
			}
		}
	}()
}
