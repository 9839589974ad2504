package util

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"trace": LevelTrace,
		"TRACE": LevelTrace,
		"debug": LevelDebug,
		"info":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
	}

	for input, want := range tests {
		if got := ParseLogLevel(input); got != want {
			t.Fatalf("ParseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}

	if got := ParseLogLevel("unknown"); got != LevelInfo {
		t.Fatalf("ParseLogLevel default = %v, want %v", got, LevelInfo)
	}
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LevelWarn, &buf)
	logger.Infof("hidden %d", 1)
	logger.Warnf("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "[WARN] shown 2") {
		t.Fatalf("expected warn line, got %q", out)
	}
}

func TestNamedLoggerSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LevelError, &buf)
	named := logger.Named("session")

	named.Infof("before")
	logger.SetLevel(LevelDebug)
	named.Debugf("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Fatalf("named logger ignored parent level: %q", out)
	}
	if !strings.Contains(out, "[DEBUG] session: after") {
		t.Fatalf("expected component prefix, got %q", out)
	}
}
