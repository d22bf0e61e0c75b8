package logger

import (
	"io"
	"log/slog"
	"os"
)

// TestDebugEnv enables debug output from NewTestLogger when set to any value.
const TestDebugEnv = "MANTRA_TEST_DEBUG"

// NewTestLogger returns a quiet logger for tests: warnings and errors only, on stdout.
// Setting MANTRA_TEST_DEBUG lowers the level to debug.
func NewTestLogger() *slog.Logger {
	return newTestLogger(os.Stdout)
}

func newTestLogger(out io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if os.Getenv(TestDebugEnv) != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}
