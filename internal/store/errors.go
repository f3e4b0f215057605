package store

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks a connectivity failure of the queue or status backend.
// Callers are expected to surface it; stores never retry internally.
var ErrUnavailable = errors.New("store unavailable")

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
