package reactor

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestReactor(t *testing.T) *Reactor {
	t.Helper()
	return New(nil, 4)
}

func TestSendAfterCloseReturnsErrorNotPanic(t *testing.T) {
	r := newTestReactor(t)
	wire, peer := net.Pipe()
	defer peer.Close()
	sock := r.Register(wire)

	r.Close(sock)

	require.NotPanics(t, func() {
		err := r.Send(sock, []byte("x"))
		require.Error(t, err)
	})
}

// TestConcurrentSendAndCloseNeverPanics drives many Sends concurrently
// with a Close racing them, the exact window a slave teardown opens
// against an in-flight outbound frame. A single panic fails the test.
func TestConcurrentSendAndCloseNeverPanics(t *testing.T) {
	r := newTestReactor(t)
	wire, peer := net.Pipe()
	defer peer.Close()
	go func() {
		buf := make([]byte, 256)
		for {
			if _, err := peer.Read(buf); err != nil {
				return
			}
		}
	}()
	sock := r.Register(wire)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			r.Send(sock, []byte("x"))
		}
	}()
	go func() {
		defer wg.Done()
		time.Sleep(time.Millisecond)
		r.Close(sock)
	}()
	wg.Wait()
}
