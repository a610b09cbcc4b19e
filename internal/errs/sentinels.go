// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrInvalidArgument indicates the caller omitted a required identity field.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIntegrity indicates stored data violates an invariant the service relies on
	// (duplicate external id, record without its own key).
	ErrIntegrity = errors.New("integrity violation")

	// ErrTransport wraps failures of the underlying store call.
	ErrTransport = errors.New("store transport")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates a temporary block due to rate limiting.
	ErrRateLimited = errors.New("rate limited")
)
