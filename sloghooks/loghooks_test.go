package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/unkn0wn-root/storekit"
)

func newBufLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestSampling(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{ReadContainedEvery: 5})
	for i := 0; i < 20; i++ {
		h.ReadContained("getValue", "user:1", errors.New("timeout"))
	}
	if got := strings.Count(buf.String(), "storekit.read_contained"); got != 4 {
		t.Fatalf("logged %d of 20 with 1-in-5 sampling", got)
	}
}

func TestRedactsKeys(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{})
	h.WriteFailed("setValue", "user:secret@example.com", errors.New("boom"))
	out := buf.String()
	if strings.Contains(out, "secret@example.com") {
		t.Fatalf("raw key leaked: %s", out)
	}
	if !strings.Contains(out, "op=setValue") {
		t.Fatalf("missing op: %s", out)
	}

	buf.Reset()
	h = New(l, Options{Redact: func(string) string { return "<k>" }})
	h.WriteFailed("setValue", "user:1", &storekit.SerializationError{Err: errors.New("bad")})
	if !strings.Contains(buf.String(), "key=<k>") || !strings.Contains(buf.String(), "serialization=true") {
		t.Fatalf("custom redactor or serialization flag missing: %s", buf.String())
	}
}

func TestLockEvents(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{})
	h.LockContended("job", 50*time.Millisecond)
	h.LockRenewFailed("job", errors.New("conn reset"))
	h.LockLost("job")
	for _, ev := range []string{"storekit.lock_contended", "storekit.lock_renew_failed", "storekit.lock_lost"} {
		if !strings.Contains(buf.String(), ev) {
			t.Errorf("missing %s in %s", ev, buf.String())
		}
	}

	// nil logger is a no-op
	New(nil, Options{}).LockLost("job")
}
