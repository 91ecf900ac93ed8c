package limiter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

type netTimeout struct{}

func (netTimeout) Error() string   { return "i/o timeout" }
func (netTimeout) Timeout() bool   { return true }
func (netTimeout) Temporary() bool { return true }

var _ net.Error = netTimeout{}

func TestStoreError(t *testing.T) {
	tests := []struct {
		name    string
		cause   error
		timeout bool
	}{
		{"plain", errors.New("connection refused"), false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("dial: %w", context.DeadlineExceeded), true},
		{"net timeout", &net.OpError{Op: "read", Err: netTimeout{}}, true},
		{"canceled", context.Canceled, false},
		{"conflict", ErrConflict, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error = &StoreError{Op: "update", Key: "halt:api:k", Err: tt.cause}
			if !errors.Is(err, ErrStoreFailure) {
				t.Error("does not match ErrStoreFailure")
			}
			if got := errors.Is(err, ErrStoreTimeout); got != tt.timeout {
				t.Errorf("matches ErrStoreTimeout = %v, want %v", got, tt.timeout)
			}
			if !errors.Is(err, tt.cause) {
				t.Error("cause not reachable through Unwrap")
			}
		})
	}
}

func TestStoreError_Message(t *testing.T) {
	err := &StoreError{Op: "delete", Key: "halt:api:k", Err: errors.New("boom")}
	if got, want := err.Error(), `halt: store delete "halt:api:k": boom`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
