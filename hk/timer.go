// Package hk is the runtime's timer: a monotonic "now" plus
// expiry-driven message production (spec.md §3 "Timer" share of the
// system overview table, §4.6 main-loop integration). Unlike the
// teacher's own housekeeper, which runs its sweeps on a dedicated
// goroutine, this Timer is driven synchronously from the main loop's
// poll->trigger->dispatch cycle (spec.md §5: every operation outside
// socket.poll is synchronous) — MaxTimeout bounds the next poll, and
// Trigger fires whatever has come due.
package hk

import (
	"container/heap"
	"sync"
	"time"

	"github.com/shacorun/shaco/addr"
	"github.com/shacorun/shaco/cmn/mono"
	"github.com/shacorun/shaco/msg"
)

// Sink is the narrow view of the dispatcher a Timer needs; satisfied
// directly by *dispatch.Dispatcher.
type Sink interface {
	Push(m msg.Message)
}

type oneshot struct {
	dest    addr.Handle
	session int32
	at      int64 // mono.NanoTime() deadline
	index   int
}

type oneshotHeap []*oneshot

func (h oneshotHeap) Len() int            { return len(h) }
func (h oneshotHeap) Less(i, j int) bool  { return h[i].at < h[j].at }
func (h oneshotHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *oneshotHeap) Push(x any)         { o := x.(*oneshot); o.index = len(*h); *h = append(*h, o) }
func (h *oneshotHeap) Pop() any {
	old := *h
	n := len(old)
	o := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return o
}

// recurring is the Reg/Unreg style housekeeping task, named the way the
// teacher's hk.Reg(name, fn, every) API does.
type recurring struct {
	name  string
	every time.Duration
	fn    func()
	next  int64
}

const DefaultMaxTimeout = 500 * time.Millisecond

// Timer owns the expiry heap and the named recurring-task list. No
// locking is strictly required since the main loop is single-threaded
// (spec.md §5), but a mutex guards Add/Reg so other goroutines (e.g. a
// scripted service's worker, if one existed) could register timers
// without racing the main loop's Trigger call.
type Timer struct {
	mu    sync.Mutex
	heap  oneshotHeap
	tasks []*recurring
	sink  Sink
}

func New(sink Sink) *Timer {
	t := &Timer{sink: sink}
	heap.Init(&t.heap)
	return t
}

// Add schedules a TIMEOUT message to dest, echoing session, after d —
// the expiry-driven message a service uses to implement timeouts. The
// scripting bridge exposes now() but no function that calls Add.
func (t *Timer) Add(dest addr.Handle, session int32, d time.Duration) {
	t.mu.Lock()
	heap.Push(&t.heap, &oneshot{dest: dest, session: session, at: mono.NanoTime() + d.Nanoseconds()})
	t.mu.Unlock()
}

// Reg installs a named recurring task, run every d from now on,
// matching the teacher's hk.Reg naming (housekeeper_suite_test.go).
func (t *Timer) Reg(name string, every time.Duration, fn func()) {
	t.mu.Lock()
	t.tasks = append(t.tasks, &recurring{name: name, every: every, fn: fn, next: mono.NanoTime() + every.Nanoseconds()})
	t.mu.Unlock()
}

func (t *Timer) Unreg(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, task := range t.tasks {
		if task.name == name {
			t.tasks = append(t.tasks[:i], t.tasks[i+1:]...)
			return
		}
	}
}

// MaxTimeout returns how long the main loop may safely block in
// socket.poll before the next expiry needs servicing (spec.md §4.6
// step 1).
func (t *Timer) MaxTimeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	best := DefaultMaxTimeout
	now := mono.NanoTime()
	if t.heap.Len() > 0 {
		if d := time.Duration(t.heap[0].at - now); d < best {
			best = d
		}
	}
	for _, task := range t.tasks {
		if d := time.Duration(task.next - now); d < best {
			best = d
		}
	}
	if best < 0 {
		best = 0
	}
	return best
}

// Trigger fires every expired one-shot (pushing a TIMEOUT message) and
// every due recurring task (spec.md §4.6 step 3).
func (t *Timer) Trigger() {
	now := mono.NanoTime()

	t.mu.Lock()
	var fired []*oneshot
	for t.heap.Len() > 0 && t.heap[0].at <= now {
		fired = append(fired, heap.Pop(&t.heap).(*oneshot))
	}
	var due []*recurring
	for _, task := range t.tasks {
		if task.next <= now {
			due = append(due, task)
			task.next = now + task.every.Nanoseconds()
		}
	}
	t.mu.Unlock()

	for _, o := range fired {
		t.sink.Push(msg.Message{Dest: o.dest, Session: o.session, Type: msg.TIMEOUT})
	}
	for _, task := range due {
		task.fn()
	}
}
