package ballots

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches any update or delete aimed at an absent identifier.
	ErrNotFound = errors.New("record not found")
	// ErrVoterNotFound is returned when a voter id is absent.
	ErrVoterNotFound = fmt.Errorf("voter %w", ErrNotFound)
	// ErrVoteNotFound is returned when a vote id is absent.
	ErrVoteNotFound = fmt.Errorf("vote %w", ErrNotFound)

	ErrIDOverflow        = errors.New("identifier space exhausted")
	ErrMigrationRejected = errors.New("code migration rejected")
	// ErrUnrecordedSwitch means the host took the new code but the store could not record it.
	ErrUnrecordedSwitch = errors.New("host switched code but the store kept its previous hash")
)

// FatalError marks a call that aborted as a whole. The store is left exactly
// as it was before the call.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err, or anything it wraps, is a *FatalError.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// MigrationRejected builds the fatal error returned when a host refuses a code hash.
func MigrationRejected(hash CodeHash, cause error) error {
	return &FatalError{
		Op:  "set code",
		Err: fmt.Errorf("%w: %s: %w", ErrMigrationRejected, hash, cause),
	}
}

// UnrecordedSwitch builds the fatal error returned when a host accepted hash
// but writing it to the store failed.
func UnrecordedSwitch(hash CodeHash, cause error) error {
	return &FatalError{
		Op:  "set code",
		Err: fmt.Errorf("%w: %s: %w", ErrUnrecordedSwitch, hash, cause),
	}
}
