package limiter

import (
	"context"
	"errors"
	"fmt"

	"github.com/manenim/halt/pkg/store"
)

var (
	// ErrNilStore is returned by New when no store is given.
	ErrNilStore = errors.New("halt: store is nil")

	// ErrInvalidPolicy is returned for malformed policies. New reports it
	// for static policies; a resolver that returns a malformed policy
	// fails that check with it.
	ErrInvalidPolicy = errors.New("halt: invalid policy")

	// ErrStoreFailure matches every *StoreError.
	ErrStoreFailure = errors.New("halt: store failure")

	// ErrStoreTimeout matches a *StoreError caused by a deadline.
	ErrStoreTimeout = errors.New("halt: store timeout")

	// ErrConflict is the cause of a StoreError when the compare-and-swap
	// retry budget runs out.
	ErrConflict = store.ErrConflict
)

// StoreError reports a failed store operation. The limiter never turns a
// store failure into an allow or a deny; callers choose their own posture.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("halt: store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was caused by a deadline.
func (e *StoreError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// Is makes errors.Is match ErrStoreFailure, and ErrStoreTimeout when the
// cause is a timeout.
func (e *StoreError) Is(target error) bool {
	switch target {
	case ErrStoreFailure:
		return true
	case ErrStoreTimeout:
		return e.Timeout()
	}
	return false
}
