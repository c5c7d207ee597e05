package models

import "github.com/golang-jwt/jwt"

// Claims carried by device access tokens.
type Claims struct {
	UserID int    `json:"user_id"`
	Device string `json:"device,omitempty"`
	jwt.StandardClaims
}
