package api

import "errors"

// Sentinel errors for time-entry operations.
var (
	ErrOwnerRequired       = errors.New("owner id required")
	ErrTimerAlreadyRunning = errors.New("a timer is already running for this owner")
	ErrEntryNotFound       = errors.New("entry not found")
	ErrProfileNotFound     = errors.New("profile not found")
)
