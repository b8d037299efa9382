package hlog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLogLevel(t *testing.T) {
	t.Setenv("DELVE_DEBUGGER", "")
	for _, c := range []struct {
		verbose, debug bool
		want           zerolog.Level
	}{
		{false, false, zerolog.ErrorLevel},
		{true, false, zerolog.InfoLevel},
		{false, true, zerolog.TraceLevel},
		{true, true, zerolog.TraceLevel},
	} {
		if got := parseLogLevel(c.verbose, c.debug, zerolog.ErrorLevel); got != c.want {
			t.Errorf("parseLogLevel(%v, %v) = %v, want %v", c.verbose, c.debug, got, c.want)
		}
	}
}

func TestIsContextCancellation(t *testing.T) {
	if IsContextCancellation(nil) {
		t.Error("nil reported as cancellation")
	}
	if !IsContextCancellation(fmt.Errorf("run: %w", context.Canceled)) {
		t.Error("wrapped Canceled not detected")
	}
	if !IsContextCancellation(context.DeadlineExceeded) {
		t.Error("DeadlineExceeded not detected")
	}
	if IsContextCancellation(errors.New("boom")) {
		t.Error("plain error reported as cancellation")
	}
	ErrorIfNotCanceled(testr.New(t), context.Canceled, "not logged")
}

func TestLogWriterFile(t *testing.T) {
	t.Setenv("JOURNAL_STREAM", "")
	t.Setenv("INVOCATION_ID", "")
	file := filepath.Join(t.TempDir(), "sub", "hub.log")
	w, err := logWriter(file)
	if err != nil {
		t.Fatal(err)
	}
	lj, ok := w.(*lumberjack.Logger)
	if !ok {
		// interactive sessions log to stderr
		t.Skipf("writer is %T", w)
	}
	if lj.Filename != file {
		t.Fatalf("Filename = %q", lj.Filename)
	}
}
