package storekit

import (
	"errors"
	"fmt"

	co "github.com/unkn0wn-root/storekit/coordinator"
)

var (
	// ErrNoValues is returned by pushes called without values.
	ErrNoValues = errors.New("storekit: no values given")
	// ErrNotHeld is returned when releasing a lock the handle does not hold.
	ErrNotHeld = co.ErrNotHeld
)

// OpError wraps a failed write (or lock call) with its operation and key.
type OpError struct {
	Op  string
	Key string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("storekit: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// SerializationError reports a value that could not be encoded or decoded by
// the facade's codec.
type SerializationError struct {
	Decode bool
	Err    error
}

func (e *SerializationError) Error() string {
	if e.Decode {
		return fmt.Sprintf("decode value: %v", e.Err)
	}
	return fmt.Sprintf("encode value: %v", e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// IsSerialization reports whether err stems from a codec failure.
func IsSerialization(err error) bool {
	var se *SerializationError
	return errors.As(err, &se)
}
