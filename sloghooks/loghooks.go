package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/storekit"
)

type Options struct {
	// Sampling to avoid floods during an outage; 0/1 = log all.
	ReadContainedEvery uint64
	WriteFailedEvery   uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	readCtr  atomic.Uint64
	writeCtr atomic.Uint64
}

var _ storekit.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) ReadContained(op, key string, err error) {
	if h.l == nil || !sample(h.opts.ReadContainedEvery, &h.readCtr) {
		return
	}
	h.l.Warn("storekit.read_contained",
		"op", op,
		"key", h.redact(key),
		"serialization", storekit.IsSerialization(err),
		"err", err)
}

func (h *Hooks) WriteFailed(op, key string, err error) {
	if h.l == nil || !sample(h.opts.WriteFailedEvery, &h.writeCtr) {
		return
	}
	h.l.Error("storekit.write_failed",
		"op", op,
		"key", h.redact(key),
		"serialization", storekit.IsSerialization(err),
		"err", err)
}

func (h *Hooks) LockContended(name string, waited time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Debug("storekit.lock_contended",
		"lock", name,
		"waited", waited)
}

func (h *Hooks) LockRenewFailed(name string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("storekit.lock_renew_failed",
		"lock", name,
		"err", err)
}

func (h *Hooks) LockLost(name string) {
	if h.l == nil {
		return
	}
	h.l.Error("storekit.lock_lost",
		"lock", name,
		"msg", "lease expired before release; another holder may own the lock")
}
