package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every specific error below wraps exactly one of them so callers
// can branch on the kind with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSecurityViolation   = errors.New("security violation")
	ErrConflict            = errors.New("conflict")
)

var (
	ErrInvalidRole      = fmt.Errorf("%w: invalid role", ErrValidation)
	ErrRoleMismatch     = fmt.Errorf("%w: role not allowed for this operation", ErrValidation)
	ErrInvalidAmount    = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidBucket    = fmt.Errorf("%w: invalid bucket", ErrValidation)
	ErrInvalidElapsed   = fmt.Errorf("%w: elapsed seconds must be positive", ErrValidation)
	ErrSelfTransfer     = fmt.Errorf("%w: sender and receiver are the same user", ErrValidation)
	ErrInvalidRate      = fmt.Errorf("%w: commission rate out of range", ErrValidation)
	ErrGiftInactive     = fmt.Errorf("%w: gift is not available", ErrValidation)
	ErrSessionNotActive = fmt.Errorf("%w: session is not active", ErrValidation)
	ErrNotParticipant   = fmt.Errorf("%w: users are not paired in this room", ErrValidation)

	ErrSessionNotFound     = fmt.Errorf("session %w", ErrNotFound)
	ErrGiftNotFound        = fmt.Errorf("gift %w", ErrNotFound)
	ErrGiftRequestNotFound = fmt.Errorf("gift request %w", ErrNotFound)

	ErrInvalidGiftToken = fmt.Errorf("%w: gift token mismatch", ErrSecurityViolation)

	ErrMatchContention    = fmt.Errorf("%w: matchmaking contention, retry", ErrConflict)
	ErrAcceptInProgress   = fmt.Errorf("%w: gift request already processing", ErrConflict)
	ErrDuplicateGift      = fmt.Errorf("%w: duplicate gift request", ErrConflict)
	ErrGiftRequestClosed  = fmt.Errorf("%w: gift request is no longer pending", ErrConflict)
	ErrGiftRequestExpired = fmt.Errorf("%w: gift request expired", ErrConflict)
	ErrLeaseHeld          = fmt.Errorf("%w: lease held", ErrConflict)
)

// Kind returns the error kind err belongs to, or nil for unexpected faults.
func Kind(err error) error {
	for _, kind := range []error{
		ErrValidation,
		ErrNotFound,
		ErrInsufficientBalance,
		ErrSecurityViolation,
		ErrConflict,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
