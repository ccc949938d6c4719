package log

import (
	"bytes"
	"strings"
	"testing"
)

func newBufferLogger(level Level) (*bytes.Buffer, Logger) {
	var buf bytes.Buffer
	logger := NewLogger(
		WithLevel(level),
		WithFormatter(&TextFormatter{DisableTimestamp: true}),
		WithOutput(NewWriterOutput(&buf)),
	)
	return &buf, logger
}

func TestLevelFiltering(t *testing.T) {
	buf, logger := newBufferLogger(WarnLevel)
	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("low-severity entries leaked: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn entry missing: %q", out)
	}
}

func TestFieldsAppearInOutput(t *testing.T) {
	buf, logger := newBufferLogger(DebugLevel)
	logger.Info("publish", Str("log", "orders"), Int("count", 3))
	out := buf.String()
	for _, want := range []string{"publish", "log=orders", "count=3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestWithAttachesFields(t *testing.T) {
	buf, logger := newBufferLogger(DebugLevel)
	child := logger.With(Component("server"), Str("group", "g1"))
	child.Info("claim")
	out := buf.String()
	if !strings.Contains(out, "component=server") || !strings.Contains(out, "group=g1") {
		t.Fatalf("child fields missing: %q", out)
	}
	// Parent remains unaffected.
	buf.Reset()
	logger.Info("plain")
	if strings.Contains(buf.String(), "component=server") {
		t.Fatalf("parent logger picked up child fields: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"Warning": WarnLevel,
		"err":     ErrorLevel,
		"fatal":   FatalLevel,
		"":        InfoLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestApplyConfigRedaction(t *testing.T) {
	logger, err := ApplyConfig(&Config{Level: "debug", Format: "json", Output: "null", Redact: []string{"password"}})
	if err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	base, ok := logger.(*BaseLogger)
	if !ok {
		t.Fatalf("expected *BaseLogger")
	}
	var buf bytes.Buffer
	base.outputs = []Output{NewWriterOutput(&buf)}
	base.Info("login", Str("user", "ann"), Str("password", "hunter2"))
	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Fatalf("redacted value leaked: %q", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Fatalf("redaction marker missing: %q", out)
	}
}

func TestApplyConfigRejectsUnknown(t *testing.T) {
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if _, err := ApplyConfig(&Config{Output: "file"}); err == nil {
		t.Fatalf("expected error for file output without path")
	}
}
