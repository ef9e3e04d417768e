package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T, verboseMode bool, f Format) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(verboseMode)
	SetFormat(f)
	t.Cleanup(func() {
		SetVerbose(false)
		SetFormat(FormatText)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestSetVerbose(t *testing.T) {
	capture(t, false, FormatText)
	if IsVerbose() {
		t.Fatal("verbose should start disabled")
	}
	SetVerbose(true)
	if !IsVerbose() {
		t.Fatal("verbose should be enabled")
	}
}

func TestTextLevels(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		log     func()
		want    string
	}{
		{"debug verbose", true, func() { Debug("chunked %d docs", 3) }, "[DEBUG] chunked 3 docs\n"},
		{"debug quiet", false, func() { Debug("chunked %d docs", 3) }, ""},
		{"info verbose", true, func() { Info("fabric %s ready", "f1") }, "[INFO] fabric f1 ready\n"},
		{"info quiet", false, func() { Info("fabric %s ready", "f1") }, ""},
		{"warn verbose", true, func() { Warn("provider %s skipped", "azure") }, "[WARN] provider azure skipped\n"},
		{"warn quiet", false, func() { Warn("provider %s skipped", "azure") }, ""},
		{"error always", false, func() { Error("build %s failed", "f1") }, "[ERROR] build f1 failed\n"},
		{"section verbose", true, func() { Section("Vectorizing") }, "\n=== Vectorizing ===\n"},
		{"section quiet", false, func() { Section("Vectorizing") }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := capture(t, tt.verbose, FormatText)
			tt.log()
			if got := buf.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJSONFormat(t *testing.T) {
	buf := capture(t, true, FormatJSON)

	Warn("retrying %s", "openai")
	Section("Chunking")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var warn map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &warn); err != nil {
		t.Fatalf("warn line is not JSON: %v", err)
	}
	if warn["level"] != "WARN" || warn["msg"] != "retrying openai" {
		t.Errorf("unexpected warn record: %v", warn)
	}

	var section map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &section); err != nil {
		t.Fatalf("section line is not JSON: %v", err)
	}
	if section["msg"] != "section" || section["name"] != "Chunking" {
		t.Errorf("unexpected section record: %v", section)
	}
}

func TestJSONFormat_ErrorWhenQuiet(t *testing.T) {
	buf := capture(t, false, FormatJSON)
	Debug("hidden")
	Error("index %s missing", "fabric-1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q", buf.String())
	}
	if rec["level"] != "ERROR" || rec["msg"] != "index fabric-1 missing" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestSetFormat_UnknownFallsBackToText(t *testing.T) {
	buf := capture(t, true, Format("yaml"))
	Info("plain")
	if got := buf.String(); got != "[INFO] plain\n" {
		t.Errorf("got %q", got)
	}
}
