package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("transaction not found")
	// ErrOfflineEdit rejects edits of synced records while disconnected.
	// Nothing is queued.
	ErrOfflineEdit = errors.New("edit unavailable offline")
	// ErrOffline is returned by operations that need the remote store.
	ErrOffline = errors.New("remote store unreachable")
	// ErrStorageCorrupt marks a local snapshot that could not be decoded.
	// Load recovers from it and only logs it.
	ErrStorageCorrupt = errors.New("local storage corrupt")
)

// TransportError wraps a failed remote call. Local state is unchanged by
// the failed call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PartialSyncError reports the mutations a reconcile pass could not apply.
// They stay queued for the next pass.
type PartialSyncError struct {
	Failed    int
	Remaining int
	Errs      []error
}

func (e *PartialSyncError) Error() string {
	return fmt.Sprintf("reconcile: %d mutation(s) failed, %d still queued", e.Failed, e.Remaining)
}

func (e *PartialSyncError) Unwrap() []error { return e.Errs }
