package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestZerologAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewZerologAdapterWithLogger(zerolog.New(&buf))

	adapter.Info("cache hit",
		String("url", "http://viewer.local/RECURSOS/model.fbx"),
		Int("status", 200),
		Int64("bytes", 52<<20),
		Bool("opaque", false),
		Duration("elapsed", time.Millisecond),
		Err(errors.New("boom")),
		Any("keys", []string{"segarro-v6"}),
	)

	out := buf.String()
	for _, want := range []string{
		`"level":"info"`,
		`"message":"cache hit"`,
		`"url":"http://viewer.local/RECURSOS/model.fbx"`,
		`"status":200`,
		`"bytes":54525952`,
		`"opaque":false`,
		`"error":"boom"`,
		`"keys":["segarro-v6"]`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %s missing %s", out, want)
		}
	}
}

func TestConsoleAdapter_Level(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewConsoleAdapter(&buf, "warn")

	adapter.Info("hidden")
	adapter.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn message missing: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"chatty", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

type recordingLogger struct {
	NoopLogger
	fields []Field
}

func (r *recordingLogger) Info(msg string, fields ...Field) { r.fields = fields }

func TestWith(t *testing.T) {
	rec := &recordingLogger{}
	logger := With(rec, String("cache", "segarro-v6"))

	logger.Info("seeded", Int("files", 1))

	if len(rec.fields) != 2 || rec.fields[0].Key != "cache" || rec.fields[1].Key != "files" {
		t.Errorf("fields = %+v, want cache then files", rec.fields)
	}
	if With(rec) != Logger(rec) {
		t.Error("With() without fields should return the logger unchanged")
	}
	if With(nil, String("a", "b")) == nil {
		t.Error("With(nil) returned nil")
	}
}
