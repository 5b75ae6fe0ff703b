// Package daemon implements process backgrounding and the pidfile
// lifecycle, grounded byte-for-byte on shaco.c's shaco_init/shaco_fini
// ordering: the pidfile is checked for a stale/live holder *before*
// daemonizing, daemonizing happens next, and the pidfile is only
// written (and later removed) when a path was resolved at all —
// daemon mode, or a "pidfile" override in foreground mode (spec.md §6
// "Pidfile", SUPPLEMENTED FEATURES).
//
// True fork(2) is unsafe in a multi-threaded Go process, so Daemonize
// re-execs the current binary as a detached child instead of forking
// in place; the net effect (parent exits immediately, child runs
// session-leader and disconnected from the controlling terminal) is
// the same one daemonize(0) produces.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/shacorun/shaco/rtcfg"
)

// PidFilePath mirrors get_pidfile(): a daemon always resolves one from
// the "pidfile" option (default "./shaco.pid"); a foreground process
// only has one if the "pidfile" environment variable is set, matching
// shaco_getenv("pidfile")'s semantics of reading caller-supplied
// overrides out of the environment rather than the options file.
func PidFilePath(opts *rtcfg.Store, daemonMode bool) string {
	if daemonMode {
		return opts.String("pidfile", "./shaco.pid")
	}
	return os.Getenv("pidfile")
}

// CheckStale reports the pid recorded in path, and whether that pid
// denotes a process that is actually still alive (check_pid). An
// unreadable or empty pidfile, a recorded pid of 0, or a pid matching
// the caller's own are all treated as stale — nothing is holding the
// file.
func CheckStale(path string) (pid int, stale bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, true
	}
	defer f.Close()

	if _, err := fmt.Fscanf(f, "%d", &pid); err != nil {
		return 0, true
	}
	if pid == 0 || pid == os.Getpid() {
		return 0, true
	}
	if err := syscall.Kill(pid, 0); err != nil && err == syscall.ESRCH {
		return 0, true
	}
	return pid, false
}

// Daemonize re-execs the current process, detached from its
// controlling terminal and running as its own session leader, then
// exits the parent — Go's equivalent of fork()+setsid()+dup2-to-/dev/null
// (daemonize(0)). noclose mirrors the original flag: when true, stdio
// is left attached instead of redirected to /dev/null.
func Daemonize(noclose bool) error {
	if os.Getenv("_SHACO_DAEMONIZED") == "1" {
		return nil // already the re-exec'd child
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil && !noclose {
		return fmt.Errorf("daemon: open %s: %w", os.DevNull, err)
	}

	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), "_SHACO_DAEMONIZED=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if noclose {
		cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	} else {
		cmd.Stdin, cmd.Stdout, cmd.Stderr = devnull, devnull, devnull
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemon: re-exec: %w", err)
	}
	os.Exit(0)
	return nil // unreachable
}

// Pidfile is the held advisory lock on a written pidfile; Release
// removes it and unlocks the underlying file.
type Pidfile struct {
	f *os.File
}

// WritePid creates (or opens) path, takes an exclusive non-blocking
// advisory lock on it, and writes the caller's own pid — write_pid.
// A lock already held by a live process is reported with that pid, the
// same fatal condition shaco_init treats as "can't lock pidfile".
func WritePid(path string) (*Pidfile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("daemon: create %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		var pid int
		fmt.Fscanf(f, "%d", &pid)
		f.Close()
		return nil, fmt.Errorf("daemon: pidfile %s locked by pid %d", path, pid)
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("daemon: write pid: %w", err)
	}
	return &Pidfile{f: f}, nil
}

// Release unlinks the pidfile and releases the lock — run only when a
// pidfile was actually resolved, matching shaco_fini's same guard.
func (p *Pidfile) Release(path string) {
	os.Remove(path)
	syscall.Flock(int(p.f.Fd()), syscall.LOCK_UN)
	p.f.Close()
}
