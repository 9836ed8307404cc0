package storekit

import "time"

const (
	defaultLease         = 30 * time.Second
	defaultRetryInterval = 100 * time.Millisecond
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
