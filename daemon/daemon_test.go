package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWritePidThenCheckStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shaco.pid")

	pf, err := WritePid(path)
	require.NoError(t, err)

	// Our own pid is always considered stale (check_pid's "pid ==
	// getpid()" guard), so the just-written file reports stale=true.
	_, stale := CheckStale(path)
	require.True(t, stale)

	pf.Release(path)
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestCheckStaleMissingFile(t *testing.T) {
	pid, stale := CheckStale(filepath.Join(t.TempDir(), "missing.pid"))
	require.True(t, stale)
	require.Zero(t, pid)
}

func TestWritePidRejectsAlreadyLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shaco.pid")

	pf, err := WritePid(path)
	require.NoError(t, err)
	defer pf.Release(path)

	_, err = WritePid(path)
	require.Error(t, err)
}
