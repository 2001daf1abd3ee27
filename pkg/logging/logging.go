// Package logging provides a process-wide structured logger for the storage
// runtime.
//
// The package wraps [github.com/sirupsen/logrus] and exposes a single global
// logger instance that is initialized once and then retrieved via GetLogger.
// All subsystems obtain a logger through this package rather than
// constructing their own logrus.Logger, so that level and output are
// controlled from a single place.
//
// Call Init once at startup, before any goroutine that might call
// GetLogger is spawned. If GetLogger is called before Init, a default
// stderr logger at INFO level is created lazily via sync.Once, so packages
// that log during init are safe.
//
// Several helpers return child entries pre-populated with structured
// fields, mirroring the field names a page/lock/transaction operation would
// want on every line it emits: WithTx, WithPage, WithLock, WithComponent,
// WithError.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"coredb/pkg/concurrency/txn"
	"coredb/pkg/storage/page"
)

// Level mirrors logrus.Level so callers of this package need not import
// logrus directly just to call Init.
type Level = logrus.Level

const (
	LevelDebug Level = logrus.DebugLevel
	LevelInfo  Level = logrus.InfoLevel
	LevelWarn  Level = logrus.WarnLevel
	LevelError Level = logrus.ErrorLevel
)

var (
	logger     *logrus.Logger
	initOnce   sync.Once
	initCalled bool
	mu         sync.RWMutex
)

// Init configures the global logger. output may be nil, in which case logs
// go to stderr. Calling Init more than once has no effect beyond the first
// call, matching the source's double-init guard.
func Init(level Level, output io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	if initCalled {
		return
	}
	initCalled = true

	if output == nil {
		output = os.Stderr
	}

	l := logrus.New()
	l.SetLevel(level)
	l.SetOutput(output)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger = l
}

// GetLogger returns the global logger, lazily initializing a stderr/INFO
// default the first time it's called with no prior Init.
func GetLogger() *logrus.Logger {
	initOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if logger == nil {
			l := logrus.New()
			l.SetLevel(LevelInfo)
			l.SetOutput(os.Stderr)
			logger = l
		}
	})

	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// WithTx returns an entry with the transaction ID field set.
func WithTx(tid txn.ID) *logrus.Entry {
	return GetLogger().WithField("tx_id", tid.String())
}

// WithPage returns an entry with the page ID field set.
func WithPage(pid page.ID) *logrus.Entry {
	return GetLogger().WithField("page_id", pid.String())
}

// WithLock returns an entry with transaction and resource fields set, for
// lock-manager grant/deny/release logging.
func WithLock(tid txn.ID, pid page.ID) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"tx_id":    tid.String(),
		"resource": pid.String(),
	})
}

// WithComponent returns an entry tagged with the originating subsystem.
func WithComponent(component string) *logrus.Entry {
	return GetLogger().WithField("component", component)
}

// WithError returns an entry with the error field set.
func WithError(err error) *logrus.Entry {
	return GetLogger().WithField("error", err.Error())
}
