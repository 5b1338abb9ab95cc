package spin

import "errors"

var (
	ErrSpinIDRequired    = errors.New("spin id is required")
	ErrLockHeld          = errors.New("another spin is in progress")
	ErrNoEligibleEntries = errors.New("no eligible entries to spin")
	ErrSpinNotFound      = errors.New("spin not found")
	ErrSpinCancelled     = errors.New("spin is cancelled")
	ErrSpinFinalized     = errors.New("spin is already finalized")
	ErrLockConflict      = errors.New("wheel lock is held by another spin")
	ErrSnapshotStale     = errors.New("snapshot entries are no longer eligible")
	ErrConcurrentUpdate  = errors.New("spin was updated concurrently")
)
