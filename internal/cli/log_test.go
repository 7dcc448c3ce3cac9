package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   log.Level
		logFunc func(*log.Logger)
		wantLog bool
	}{
		{"info at info", log.InfoLevel, func(l *log.Logger) { l.Info("scan started") }, true},
		{"debug at info", log.InfoLevel, func(l *log.Logger) { l.Debug("strategy done") }, false},
		{"debug at debug", log.DebugLevel, func(l *log.Logger) { l.Debug("strategy done") }, true},
		{"warn at info", log.InfoLevel, func(l *log.Logger) { l.Warn("strategy skipped") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(newLogger(&buf, tt.level))
			if got := buf.Len() > 0; got != tt.wantLog {
				t.Errorf("wrote output = %v, want %v", got, tt.wantLog)
			}
		})
	}
}

func TestProgressReportsElapsed(t *testing.T) {
	var buf bytes.Buffer
	prog := newProgress(newLogger(&buf, log.InfoLevel))
	prog.done("Transcribed 3 requirements from conanfile.py")

	out := buf.String()
	if !strings.Contains(out, "Transcribed 3 requirements") {
		t.Errorf("output %q missing message", out)
	}
	if !strings.Contains(out, "s)") {
		t.Errorf("output %q missing elapsed time", out)
	}
}

func TestLoggerFromContext(t *testing.T) {
	if loggerFromContext(context.Background()) != log.Default() {
		t.Error("bare context should yield the default logger")
	}

	var buf bytes.Buffer
	custom := newLogger(&buf, log.InfoLevel)
	ctx := withLogger(context.Background(), custom)
	if got := loggerFromContext(ctx); got != custom {
		t.Fatal("loggerFromContext should return the attached logger")
	}
	loggerFromContext(ctx).Info("hello")
	if buf.Len() == 0 {
		t.Error("attached logger should write to its writer")
	}
}
