package hlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asnowfix/alexfil-hub/internal/debug"
	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/kardianos/service"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Logger = logr.Discard()

// LogToStderr reports whether HUB_LOG=stderr forces logging to stderr.
func LogToStderr() bool {
	return os.Getenv("HUB_LOG") == "stderr"
}

// Options select the log output.
type Options struct {
	Verbose bool
	Debug   bool
	// JSON disables the console writer even on a terminal.
	JSON bool
	// File overrides the rotating log file path.
	File string
}

// Init is for short-lived CLI commands: errors only unless verbose.
func Init(opts Options) {
	InitWithLevel(opts, zerolog.ErrorLevel)
}

// InitForDaemon logs at info level by default.
func InitForDaemon(opts Options) {
	InitWithLevel(opts, zerolog.InfoLevel)
}

func InitWithLevel(opts Options, defaultLevel zerolog.Level) {
	debugInit("Initializing logger")

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zerologr.NameFieldName = "logger"
	zerologr.NameSeparator = "/"
	zerologr.SetMaxV(2)

	var w io.Writer
	isTerminal := IsTerminal()

	if LogToStderr() || isTerminal {
		w = os.Stderr
	} else {
		var err error
		w, err = logWriter(opts.File)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file unavailable, using stderr: %v\n", err)
			w = os.Stderr
		}
	}

	zl := zerolog.New(w)
	if isTerminal && !opts.JSON {
		zl = zl.Output(zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    !isColorTerminal(),
			TimeFormat: time.RFC3339,
		})
	}

	level := parseLogLevel(opts.Verbose, opts.Debug, defaultLevel)
	zerolog.SetGlobalLevel(level)
	zl = zl.Level(level).With().Caller().Timestamp().Logger()

	Logger = zerologr.New(&zl)
	Logger.V(1).Info("Initialized", "level", level.String(), "verbose", opts.Verbose, "debug", opts.Debug)
}

// parseLogLevel maps the flags to a zerolog level. --debug enables V(1) and
// V(2) logs; zerologr logs V(n) at zerolog level 1-n.
func parseLogLevel(verbose bool, debugging bool, defaultLevel zerolog.Level) zerolog.Level {
	switch {
	case debugging:
		return zerolog.TraceLevel
	case verbose:
		return zerolog.InfoLevel
	case debug.IsDebuggerAttached():
		return zerolog.DebugLevel
	default:
		return defaultLevel
	}
}

func isColorTerminal() bool {
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	if _, exists := os.LookupEnv("CLICOLOR_FORCE"); exists {
		return true
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if term := os.Getenv("TERM"); term != "" {
		if strings.HasSuffix(term, "-256color") ||
			strings.HasSuffix(term, "-color") ||
			strings.HasPrefix(term, "xterm") ||
			strings.HasPrefix(term, "screen") {
			return true
		}
	}
	return IsTerminal()
}

func logWriter(file string) (io.Writer, error) {
	if service.Interactive() {
		return os.Stderr, nil
	}

	// systemd captures stderr into the journal
	if os.Getenv("JOURNAL_STREAM") != "" || os.Getenv("INVOCATION_ID") != "" {
		return os.Stderr, nil
	}

	if file == "" {
		file = filepath.Join(getLogDir(), "hub.log")
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}, nil
}

// IsContextCancellation checks if an error is due to context cancellation
func IsContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ErrorIfNotCanceled logs an error only if it's not due to context cancellation
func ErrorIfNotCanceled(log logr.Logger, err error, msg string, keysAndValues ...interface{}) {
	if err != nil && !IsContextCancellation(err) {
		log.Error(err, msg, keysAndValues...)
	}
}
