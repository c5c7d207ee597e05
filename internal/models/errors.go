package models

import (
	"errors"
)

var (
	ErrNoRecord            = errors.New("models: no matching record found")
	ErrInsufficientBucks   = errors.New("models: not enough book bucks")
	ErrUnknownProduct      = errors.New("models: unknown product id")
	ErrReceiptAbsent       = errors.New("models: app store receipt is absent")
	ErrSecureStoreSealed   = errors.New("models: secure store value failed to decrypt")
	ErrMirrorUnavailable   = errors.New("models: cloud mirror is unavailable")
	ErrDeviceTokenNotFound = errors.New("models: device token not found")
)
