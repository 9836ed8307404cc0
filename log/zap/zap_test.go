package zap

import (
	"errors"
	"testing"

	"github.com/unkn0wn-root/storekit"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := ZapLogger{L: zap.New(core)}

	l.Warn("read failed, returning zero value", storekit.Fields{"op": "getValue", "err": errors.New("timeout")})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["op"] != "getValue" || ctx["err"] != "timeout" {
		t.Fatalf("unexpected fields: %v", ctx)
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("level = %v", entries[0].Level)
	}
}

func TestNewParsesLevel(t *testing.T) {
	l, err := New("warn", "console")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) || !l.Core().Enabled(zapcore.WarnLevel) {
		t.Fatalf("level not applied")
	}

	l, err = New("loud", "json")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !l.Core().Enabled(zapcore.InfoLevel) || l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("unknown level should fall back to info")
	}
}
