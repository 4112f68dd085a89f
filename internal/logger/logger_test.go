package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestStdOutLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := &StdOutLogger{logLevel: LogInfo}
	l.SetOutput(&buf)

	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	l.Errorf("failed %s", "x")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written at info level: %q", out)
	}
	if !strings.Contains(out, "INFO: shown 2") {
		t.Errorf("missing info line: %q", out)
	}
	if !strings.Contains(out, "ERROR: failed x") {
		t.Errorf("missing error line: %q", out)
	}
}

func TestParseLogLevel(t *testing.T) {
	if ParseLogLevel("DEBUG") != LogDebug {
		t.Errorf("expected debug")
	}
	if ParseLogLevel("error") != LogError {
		t.Errorf("expected error")
	}
	if ParseLogLevel("whatever") != LogInfo {
		t.Errorf("expected info default")
	}
}

func TestOrNull(t *testing.T) {
	if _, ok := OrNull(nil).(*NullLogger); !ok {
		t.Errorf("expected NullLogger for nil input")
	}
	l := &StdOutLogger{}
	if OrNull(l) != ILogger(l) {
		t.Errorf("expected passthrough")
	}
}
