package domain

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrInvalidEnvelope       = errors.New("invalid envelope")
	ErrNotFound              = errors.New("resource not found")
	ErrConflict              = errors.New("conflict")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// Resolution cycle failures.
	ErrUnsupportedMode = errors.New("resolve without reply channel is not supported")
	ErrCaseBusy        = errors.New("case already has a resolution in flight")
	ErrDispatchFailure = errors.New("bus dispatch failed")
	ErrDeliveryGap     = errors.New("remote reply arrived without a pending reply channel")
	ErrTimeout         = errors.New("resolution timed out")
	ErrEntityStopped   = errors.New("entity registry stopped")
)
