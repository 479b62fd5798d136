// Package logger provides the process-wide structured logger. Components
// obtain a tagged entry with For and log through logrus fields.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu   sync.RWMutex
	base = newBase()
)

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Configure sets the level, format and output of the base logger. An empty
// or unknown level keeps "info".
func Configure(level string, json bool, out io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)
	if json {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if out != nil {
		base.SetOutput(out)
	}
}

// For returns an entry tagged with the component name.
func For(component string) *logrus.Entry {
	mu.RLock()
	defer mu.RUnlock()
	return base.WithField("component", component)
}

// Base returns the underlying logger.
func Base() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}
