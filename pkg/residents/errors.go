package residents

import (
	"errors"
	"fmt"
)

var (
	ErrResidentNotFound  = errors.New("resident not found")
	ErrRecordLocked      = errors.New("resident record is locked")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDuplicateNIK      = errors.New("a resident with this NIK already exists")
	ErrResidentInUse     = errors.New("resident is referenced by invoices")
	ErrInvalidResident   = errors.New("invalid resident")
	// ErrStatusChanged is returned by Store.UpdateResident when the stored
	// status no longer matches the one the caller read
	ErrStatusChanged = errors.New("resident status changed concurrently")
)

// InvalidTransitionError describes a refused status change
type InvalidTransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s: %s", ErrInvalidTransition, e.From, e.To, e.Reason)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IsRecordLocked reports whether err is a locked-record refusal
func IsRecordLocked(err error) bool {
	return errors.Is(err, ErrRecordLocked)
}

// IsInvalidTransition reports whether err is a refused status change
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
