package logging_test

import (
	"context"
	"testing"

	"docket/internal/logging"
	"docket/internal/services"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := logging.New(logging.Options{Format: "yaml"})
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewDefaultsToConsole(t *testing.T) {
	logger, err := logging.New(logging.Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger")
	}
}

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItemKey(ctx, "doc-42")
	ctx = services.WithStage(ctx, "ocr")
	ctx = services.WithDomain(ctx, "vision.example.gov")
	ctx = services.WithRequestID(ctx, "req-1")

	fields := logging.ContextFields(ctx)
	if len(fields) != 4 {
		t.Fatalf("expected 4 context fields, got %d", len(fields))
	}
	keys := map[string]bool{}
	for _, f := range fields {
		keys[f.Key] = true
	}
	for _, want := range []string{logging.FieldItemKey, logging.FieldStage, logging.FieldDomain, logging.FieldCorrelationID} {
		if !keys[want] {
			t.Fatalf("missing field %q in %v", want, keys)
		}
	}
}

func TestWithContextNilLogger(t *testing.T) {
	logger := logging.WithContext(context.Background(), nil)
	if logger == nil {
		t.Fatal("expected fallback logger")
	}
	logger.Info("should not panic")
}
