// Package logger provides the package-level logrus entry point shared by
// the server, connection and protocol layers.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the entry point used throughout the server. It is a *logrus.Entry
// rather than the bare *logrus.Logger so callers can attach fields with
// WithField/WithFields without mutating shared state.
var Logger = logrus.NewEntry(newLogrus())

func newLogrus() *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp: true,
	}
	l.Level = logrus.InfoLevel

	if lvl := os.Getenv("NFS4STATE_LOG_LEVEL"); lvl != "" {
		if parsed, err := logrus.ParseLevel(lvl); err == nil {
			l.Level = parsed
		}
	}

	return l
}

// SetLevel overrides the log level of the underlying logger. cmd/nfs4go uses
// this to apply --log-level without touching the global logrus default logger.
func SetLevel(level logrus.Level) {
	Logger.Logger.SetLevel(level)
}
