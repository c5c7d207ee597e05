package repositories

import (
	"context"
	"database/sql"

	"bookstoreBack/internal/models"
)

// DeviceTokenRepository stores FCM registration tokens per user so the
// backend can nudge other devices after an entitlement change.
type DeviceTokenRepository struct {
	DB *sql.DB
}

// SaveToken upserts a token for the user.
func (r *DeviceTokenRepository) SaveToken(ctx context.Context, userID int, token string) error {
	query := `
    INSERT INTO device_tokens (user_id, token)
    VALUES (?, ?)
    ON DUPLICATE KEY UPDATE user_id = VALUES(user_id)`
	_, err := r.DB.ExecContext(ctx, query, userID, token)
	return err
}

// TokensByUserID returns all registered tokens for the user.
func (r *DeviceTokenRepository) TokensByUserID(ctx context.Context, userID int) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT token FROM device_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// UserIDs returns every user with at least one registered device.
func (r *DeviceTokenRepository) UserIDs(ctx context.Context) ([]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT user_id FROM device_tokens`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteToken removes a token, e.g. after FCM reports it unregistered.
// Returns ErrDeviceTokenNotFound when the token was never registered.
func (r *DeviceTokenRepository) DeleteToken(ctx context.Context, token string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM device_tokens WHERE token = ?`, token)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrDeviceTokenNotFound
	}
	return nil
}
