package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/phenoquery/phenoquery/internal/config"
)

func TestNewLoggerAddsServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{
		Profile:       config.ProfileTest,
		Service:       config.ServiceConfig{Name: "phenoquery-api"},
		Observability: config.ObservabilityConfig{LogLevel: slog.LevelInfo, LogJSON: true},
	}
	NewLogger(cfg, &buf).Info("hello")

	line := buf.String()
	if !strings.Contains(line, `"service":"phenoquery-api"`) || !strings.Contains(line, `"profile":"test"`) {
		t.Fatalf("log line = %s", line)
	}
}

func TestLoggerWithTraceAddsTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := ContextWithTraceID(context.Background(), "abc123")

	LoggerWithTrace(ctx, logger).Info("hello")
	if !strings.Contains(buf.String(), `"trace_id":"abc123"`) {
		t.Fatalf("log line = %s", buf.String())
	}
}

func TestLoggerWithTraceToleratesNilLogger(t *testing.T) {
	LoggerWithTrace(context.Background(), nil).Info("discarded")
}
