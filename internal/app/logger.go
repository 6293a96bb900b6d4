package app

import (
	"log/slog"
	"os"
)

// package-level logger for use cases; callers may replace it with SetLogger
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger installs the logger used by the app package. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}
