package apperrors

import (
	"errors"
)

var (
	// Missing or invalid security-sensitive configuration, fatal on startup
	ErrConfiguration = errors.New("configuration error")

	// Store could not answer in time or at all. Safe to retry, never means "no access"
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrTokenNotFound  = errors.New("access token not found")
	ErrTokenExpired   = errors.New("access token is expired")
	ErrTokenCollision = errors.New("access token id already taken")

	ErrPaymentNotFound = errors.New("payment record not found")

	ErrSignatureInvalid       = errors.New("webhook signature is invalid")
	ErrEventMalformed         = errors.New("webhook event is malformed")
	ErrPaymentMetadataMissing = errors.New("paid event has no email or article slug")

	ErrDeliveryFailed = errors.New("notification delivery failed")
	ErrLinkInvalid    = errors.New("magic link is invalid")

	ErrContentNotFound = errors.New("premium content not found")
)
