package campaign

import (
	"errors"
	"fmt"
)

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrRunNotFound       = errors.New("campaign run not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrArchived          = errors.New("campaign is archived")
	ErrMessageRequired   = errors.New("campaign has no message")
)

// PersistenceError reports a storage failure. Whatever the operation was
// writing has been rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// persistence wraps err unless it is nil or already a known service error.
func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrNotFound, ErrRunNotFound, ErrInvalidTransition, ErrArchived} {
		if errors.Is(err, known) {
			return err
		}
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
