// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across gateway/surface layers.
var (
	// ErrNotConnected indicates no active socket; /init must run first.
	ErrNotConnected = errors.New("not connected")

	// ErrUnauthorized indicates a failed bearer-token check on the HTTP surface.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the per-IP HTTP request budget is exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrNoQR indicates no QR code has been received yet in this session.
	ErrNoQR = errors.New("no qr available")
)
