package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrNotFound indicates the requested record does not exist locally or remotely
	ErrNotFound = errors.New("record not found")

	// ErrSourceUnavailable indicates the remote API is unreachable
	ErrSourceUnavailable = errors.New("remote source is unreachable")

	// ErrSyncInProgress indicates a refresh was requested while a sync is already running
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrStoreClosed indicates an operation was attempted on a closed store
	ErrStoreClosed = errors.New("store is closed")
)
