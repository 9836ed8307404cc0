package storekit

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; wrap slow ones with hooks/async.
type Hooks interface {
	// A read failed and its zero value was returned instead.
	ReadContained(op, key string, err error)

	// A write failed and the error was returned to the caller.
	WriteFailed(op, key string, err error)

	// Acquire gave up after waiting because another holder kept the lock.
	LockContended(name string, waited time.Duration)

	// The watchdog could not reach the coordinator to extend a lease.
	LockRenewFailed(name string, err error)

	// The watchdog found the lease already gone; the lock is no longer held.
	LockLost(name string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) ReadContained(string, string, error) {}
func (NopHooks) WriteFailed(string, string, error)   {}
func (NopHooks) LockContended(string, time.Duration) {}
func (NopHooks) LockRenewFailed(string, error)       {}
func (NopHooks) LockLost(string)                     {}
