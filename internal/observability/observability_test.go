package observability

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/contrib/processors/minsev"
)

func TestInstrumentFormats(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		format Format
		want   string
	}{
		{format: FormatText, want: "msg=hello"},
		{format: FormatJSON, want: `"msg":"hello"`},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			shutdown, err := Instrument(t.Context(), Options{Level: slog.LevelInfo, Format: tt.format, Writer: &buf})
			if err != nil {
				t.Fatalf("Instrument() error = %v", err)
			}
			defer func() { _ = shutdown(t.Context()) }()

			slog.Debug("hidden")
			slog.Info("hello")
			if out := buf.String(); !strings.Contains(out, tt.want) || strings.Contains(out, "hidden") {
				t.Errorf("output = %q, want %q without debug records", out, tt.want)
			}
		})
	}
}

func TestInstrumentOTelStdout(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	shutdown, err := Instrument(t.Context(), Options{Level: slog.LevelWarn, Format: FormatOTel, Exporter: ExporterStdout, Writer: &buf})
	if err != nil {
		t.Fatalf("Instrument() error = %v", err)
	}

	slog.Info("quiet")
	slog.Warn("refresh failed")
	if err := shutdown(t.Context()); err != nil {
		t.Fatalf("shutdown error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "refresh failed") {
		t.Errorf("exported logs missing warning: %q", out)
	}
	if strings.Contains(out, "quiet") {
		t.Errorf("info record passed the severity filter: %q", out)
	}
}

func TestInstrumentRejectsUnknownValues(t *testing.T) {
	if _, err := Instrument(t.Context(), Options{Format: "xml"}); err == nil {
		t.Error("Instrument() accepted format xml")
	}
	if _, err := Instrument(t.Context(), Options{Format: FormatOTel, Exporter: "kafka"}); err == nil {
		t.Error("Instrument() accepted exporter kafka")
	}
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  minsev.Severity
	}{
		{slog.LevelDebug - 4, minsev.SeverityTrace},
		{slog.LevelDebug, minsev.SeverityDebug},
		{slog.LevelInfo, minsev.SeverityInfo},
		{slog.LevelWarn, minsev.SeverityWarn},
		{slog.LevelError, minsev.SeverityError},
		{slog.LevelError + 4, minsev.SeverityError},
	}
	for _, tt := range tests {
		if got := severity(tt.level); got != tt.want {
			t.Errorf("severity(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
