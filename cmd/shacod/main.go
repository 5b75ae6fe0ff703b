// Command shacod is the runtime's daemon entrypoint, grounded on
// shaco.c's shaco_init/shaco_start/shaco_fini ordering: load options,
// open the log, resolve a pidfile and check it for a live holder,
// daemonize if asked to, lock and write the pidfile, raise the
// file-descriptor limit, bootstrap the entry service, run
// the main loop until a signal stops it, then unwind in reverse.
package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/shacorun/shaco/cmn/nlog"
	"github.com/shacorun/shaco/daemon"
	"github.com/shacorun/shaco/engine"
	"github.com/shacorun/shaco/rtcfg"
)

var configPath string

func init() {
	flag.StringVar(&configPath, "config", "./shaco.toml", "path to the runtime's TOML options file")
}

func main() {
	flag.Parse()

	opts, err := rtcfg.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shacod: load config %q: %v\n", configPath, err)
		os.Exit(1)
	}

	daemonMode := opts.Bool("daemon", false)
	if daemonMode {
		nlog.Open(opts.String("logfile", "./shaco.log"))
	} else {
		nlog.Open("")
	}
	if err := nlog.SetLevel(opts.String("loglevel", "")); err != nil {
		nlog.Warningf("shacod: %v", err)
	}

	pidfile := daemon.PidFilePath(opts, daemonMode)
	if pidfile != "" {
		if pid, stale := daemon.CheckStale(pidfile); !stale {
			nlog.Exitf("shaco is already running, pid = %d", pid)
		}
	}
	if daemonMode {
		if err := daemon.Daemonize(false); err != nil {
			nlog.Exitf("daemonize: %v", err)
		}
	}

	var pf *daemon.Pidfile
	if pidfile != "" {
		pf, err = daemon.WritePid(pidfile)
		if err != nil {
			nlog.Exitf("%v", err)
		}
	}

	rlimitCheck(opts)
	engine.SetSelfNode(opts)

	e := engine.New(opts)
	e.InstallSignals()
	e.Bootstrap()

	if addr := opts.String("statsaddr", ""); addr != "" {
		go func() {
			if err := e.Stats.Serve(addr); err != nil {
				nlog.Errorf("shacod: stats server on %s: %v", addr, err)
			}
		}()
	}

	e.Run()

	if pidfile != "" {
		pf.Release(pidfile)
	}
}

// rlimitCheck mirrors rlimit_check: the runtime needs at least
// maxsocket+32 open file descriptors (sockets plus the handful the
// process itself holds open — log file, pidfile, stats listener).
func rlimitCheck(opts *rtcfg.Store) {
	want := uint64(opts.Int("maxsocket", 0) + 32)

	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		nlog.Exitf("getrlimit nofile: %v", err)
	}
	if rl.Cur < want {
		rl.Cur = want
		if rl.Max < want {
			rl.Max = want
		}
		if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
			nlog.Exitf("setrlimit nofile: %v", err)
		}
	}
}
