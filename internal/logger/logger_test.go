package logger

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := New(Options{Level: "info", Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestZapLoggerWritesEventAndFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core))

	log.WarnObj("fetch failed", "provider_error", map[string]any{
		"provider_id": "g1",
		"error":       errors.New("boom"),
	})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["event"] != "provider_error" {
		t.Errorf("event = %v", ctx["event"])
	}
	if ctx["provider_id"] != "g1" {
		t.Errorf("provider_id = %v", ctx["provider_id"])
	}
	if ctx["error"] != "boom" {
		t.Errorf("error = %v", ctx["error"])
	}
}

func TestEnsure(t *testing.T) {
	if _, ok := Ensure(nil).(NopLogger); !ok {
		t.Fatal("expected NopLogger for nil")
	}
}
