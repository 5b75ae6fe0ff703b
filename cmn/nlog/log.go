package nlog

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu      sync.Mutex
	lvl     = INFO
	path    string // "" means stderr
	backend = logrus.New()
)

func init() {
	backend.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	backend.SetOutput(os.Stderr)
	backend.SetLevel(logrus.TraceLevel) // nlog does its own level gating, not logrus's
}

// Open points the logger at a file path ("" reverts to stderr); used at
// startup (logfile option) and again by Reopen after SIGUSR1.
func Open(p string) error {
	mu.Lock()
	defer mu.Unlock()
	return openLocked(p)
}

func openLocked(p string) error {
	path = p
	if p == "" {
		backend.SetOutput(os.Stderr)
		return nil
	}
	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	backend.SetOutput(f)
	return nil
}

// Reopen closes and reopens the current log file in place, the way
// shaco.c's reopenlog() does on SIGUSR1 — a no-op when logging to stderr.
func Reopen() error {
	mu.Lock()
	defer mu.Unlock()
	if path == "" {
		return nil
	}
	return openLocked(path)
}

// SetLevel parses name case-insensitively; an unrecognized name is a
// no-op that returns an error, per spec.
func SetLevel(name string) error {
	l, ok := ParseLevel(name)
	if !ok {
		return fmt.Errorf("nlog: unknown level %q", name)
	}
	mu.Lock()
	lvl = l
	mu.Unlock()
	return nil
}

func GetLevel() Level {
	mu.Lock()
	defer mu.Unlock()
	return lvl
}

func enabled(l Level) bool {
	mu.Lock()
	defer mu.Unlock()
	return l >= lvl
}

func Debugf(format string, args ...any) {
	if enabled(DEBUG) {
		backend.Debugf(format, args...)
	}
}

func Tracef(format string, args ...any) {
	if enabled(TRACE) {
		backend.Debugf("[TRACE] "+format, args...)
	}
}

func Infof(format string, args ...any) {
	if enabled(INFO) {
		backend.Infof(format, args...)
	}
}

func Warningf(format string, args ...any) {
	if enabled(WARNING) {
		backend.Warnf(format, args...)
	}
}

func Errorf(format string, args ...any) {
	if enabled(ERROR) {
		backend.Errorf(format, args...)
	}
}

// Exitf logs at EXIT and terminates the process — configuration/startup
// errors per spec §7 ("log at PANIC and exit"); kept as a distinct name
// from Panicf because it never unwinds with a Go panic/backtrace.
func Exitf(format string, args ...any) {
	backend.Errorf("[EXIT] "+format, args...)
	os.Exit(1)
}

// Panicf logs at PANIC and panics — reserved for assertion failures
// (spec §7's "programming errors: panic-log with backtrace and abort").
func Panicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	backend.Errorf("[PANIC] %s", msg)
	panic(msg)
}
