package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, &buf, false)

	l.Info("FaceSM", "hidden %d", 1)
	l.Warn("FaceSM", "shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("INFO message written at WARN level: %q", out)
	}
	if !strings.Contains(out, "[WARN] [FaceSM] shown 2") {
		t.Fatalf("missing WARN line, got %q", out)
	}
}

func TestLoggerSilent(t *testing.T) {
	var buf bytes.Buffer
	l := New(SILENT, &buf, false)
	l.Error("Main", "nope")
	if buf.Len() != 0 {
		t.Fatalf("SILENT logger wrote %q", buf.String())
	}
}

func TestLoggerColorOnlyOnConsole(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	l, closer, err := NewWithOptions(Options{
		Level:    DEBUG,
		UseColor: true,
		File:     filepath.Join(dir, "kiosk.log"),
		Console:  &console,
	})
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	l.Info("Broadcast", "client joined")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !strings.Contains(console.String(), levelColors[INFO]) {
		t.Fatalf("console output not colorized: %q", console.String())
	}
	data, err := os.ReadFile(filepath.Join(dir, "kiosk.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(data), "\033[") {
		t.Fatalf("file output contains color codes: %q", data)
	}
	if !strings.Contains(string(data), "[INFO] [Broadcast] client joined") {
		t.Fatalf("file output missing line: %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":    DEBUG,
		"INFO":     INFO,
		"warning":  WARN,
		"critical": ERROR,
		"none":     SILENT,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel(loud) should fail")
	}
}
