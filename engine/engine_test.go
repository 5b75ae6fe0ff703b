package engine

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shacorun/shaco/msg"
	"github.com/shacorun/shaco/rtcfg"
	"github.com/shacorun/shaco/svc"
)

// TestRunProcessesTimerTick exercises the main loop end to end: a
// bootstrap service that schedules a timer against its own handle
// should see its callback invoked once Run starts draining the
// dispatcher, without any socket or script involvement.
func TestRunProcessesTimerTick(t *testing.T) {
	opts := rtcfg.New(map[string]string{"bootstrap": "counter"})
	e := New(opts)

	got := make(chan struct{}, 1)
	e.Loader.RegisterBuiltin(&svc.Module{
		Name:   "counter",
		Create: func() any { return struct{}{} },
		Init: func(ctx *svc.Context, inst any, args string) error {
			ctx.SetCallback(func(ctx *svc.Context, m msg.Message) error {
				select {
				case got <- struct{}{}:
				default:
				}
				return nil
			})
			e.Timer.Add(ctx.Handle(), 1, 0)
			return nil
		},
	})

	e.Bootstrap()
	go e.Run()

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("timer tick was never delivered to the bootstrap context")
	}
	e.Stop()
}

// TestBootstrapFailExitsNonZero covers S6 (spec.md §8): an unresolvable
// bootstrap class logs "bootstrap fail" and exits the process non-zero.
// os.Exit can't be observed in-process, so this re-execs the test
// binary as a subprocess the way the standard library itself tests
// log.Fatal-style paths.
func TestBootstrapFailExitsNonZero(t *testing.T) {
	if os.Getenv("ENGINE_BOOTSTRAP_FAIL_SUBPROC") == "1" {
		opts := rtcfg.New(map[string]string{"bootstrap": "nomodule x", "modpath": t.TempDir()})
		e := New(opts)
		e.Bootstrap()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestBootstrapFailExitsNonZero")
	cmd.Env = append(os.Environ(), "ENGINE_BOOTSTRAP_FAIL_SUBPROC=1")
	err := cmd.Run()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.NotEqual(t, 0, exitErr.ExitCode())
}
