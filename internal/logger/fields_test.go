package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStringFields(t *testing.T) {
	fields := StringFields(
		StringField{Key: "  provider  ", Value: "  Gemini  "},
		StringField{Key: "ignored", Value: "   "},
		StringField{Key: "   ", Value: "empty key"},
	)

	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}

	if fields[0].Key != "provider" || fields[0].String != "Gemini" {
		t.Fatalf("unexpected provider field: %+v", fields[0])
	}
}

func TestWithFieldsNilLogger(t *testing.T) {
	enriched := WithFields(nil, zap.String("baz", "qux"))
	if enriched == nil {
		t.Fatalf("expected fallback logger when nil provided")
	}
	enriched.Info("another log")
}

func TestApplicationFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	log := WithFields(zap.New(core), ApplicationFields("job-1", "greenhouse", "")...)
	log = WithFields(log, CommonFields("gemini", "")...)
	log.Info("applying")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	ctx := entries[0].ContextMap()
	if ctx[FieldJobID] != "job-1" {
		t.Fatalf("unexpected job id: %v", ctx[FieldJobID])
	}
	if ctx[FieldPlatform] != "greenhouse" {
		t.Fatalf("unexpected platform: %v", ctx[FieldPlatform])
	}
	if _, ok := ctx[FieldAttempt]; ok {
		t.Fatalf("blank attempt id must be omitted")
	}
	if ctx[FieldProvider] != "gemini" {
		t.Fatalf("unexpected provider: %v", ctx[FieldProvider])
	}
	if _, ok := ctx[FieldModel]; ok {
		t.Fatalf("blank model must be omitted")
	}
}

func TestNew(t *testing.T) {
	log, err := New(true, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug level to be enabled")
	}
}
