package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDuplicateCallInProgress = errors.New("calls: a call to this destination is already in progress")
	ErrLockNotHeld             = errors.New("calls: destination lock not held by token")
	ErrDestinationRequired     = errors.New("calls: destination is required")
	// ErrCallEnded is returned by Bind when the call's terminal status arrived
	// first; the destination has been released.
	ErrCallEnded = errors.New("calls: call ended before its lock was bound")
)

// endedTTL bounds how long an unmatched terminal status is remembered for a late Bind.
const endedTTL = 10 * time.Minute

// Lock is one destination currently in a call.
type Lock struct {
	Destination string    `json:"destination"`
	Token       string    `json:"-"`
	CallID      string    `json:"sid,omitempty"`
	AcquiredAt  time.Time `json:"acquiredAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// LockTable maps destinations to the call currently talking to them.
//
// A destination is reserved before the dial, bound to the provider call id once
// the provider accepts it, and released on the call's terminal status. Entries
// expire after the table TTL so a lost webhook cannot pin a destination.
type LockTable interface {
	// Reserve fails with ErrDuplicateCallInProgress if dest is held.
	Reserve(ctx context.Context, dest string) (token string, err error)
	// Bind fails with ErrCallEnded, releasing dest, if ReleaseCall already saw callID.
	Bind(ctx context.Context, dest, token, callID string) error
	// Release is a no-op unless token still holds dest.
	Release(ctx context.Context, dest, token string) error
	// ReleaseCall frees whichever destination is bound to callID. An unknown
	// callID is remembered for endedTTL so a late Bind releases instead.
	ReleaseCall(ctx context.Context, callID string) (dest string, released bool, err error)
	Active(ctx context.Context) ([]Lock, error)
}
