package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound          = errors.New("entity not found")
	ErrAlreadyExists     = errors.New("entity already exists")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrResultNotReady    = errors.New("result not ready")
	ErrQueueFull         = errors.New("job queue full")
	ErrCancelled         = errors.New("job cancelled")
	ErrRateLimited       = errors.New("rate limited")

	// Collaborator errors. Callers treat all three the same way and take the fallback path.
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderError       = errors.New("provider error")
	ErrInvalidResponse     = errors.New("provider response failed validation")
)
