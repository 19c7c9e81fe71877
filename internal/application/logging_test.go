package application

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/example/courtboard/internal/logging"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestServiceLoggerPrefersContextLogger(t *testing.T) {
	t.Parallel()

	var base, scoped bytes.Buffer
	baseLogger := slog.New(slog.NewJSONHandler(&base, nil))
	ctx := logging.ContextWithLogger(context.Background(), slog.New(slog.NewJSONHandler(&scoped, nil)))

	serviceLogger(ctx, baseLogger, "AllocationService", "Allocate", "court", 3).Info("hello")

	if base.Len() != 0 {
		t.Fatalf("expected base logger to stay silent")
	}
	var record map[string]any
	if err := json.Unmarshal(scoped.Bytes(), &record); err != nil {
		t.Fatalf("decode log record: %v", err)
	}
	if record["service"] != "AllocationService" || record["operation"] != "Allocate" || record["court"] != float64(3) {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	if got := ErrorKind(ErrCourtAvailable); got != "court-available" {
		t.Fatalf("unexpected kind %q", got)
	}
}
