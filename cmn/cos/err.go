package cos

import (
	"errors"
	"fmt"
	"sync"
	ratomic "sync/atomic"

	"github.com/shacorun/shaco/cmn/debug"
)

type (
	// ErrNotFound is returned by the harbor when a slave id is out of
	// range or has no attached slave; distinguished from other errors so
	// callers can downgrade it to a log line instead of tearing anything
	// down.
	ErrNotFound struct {
		what string
	}
	// Errs aggregates up to maxErrs distinct errors, deduplicated by
	// message; used where a component (e.g. the harbor tearing down slaves) may
	// hit the same failure on more than one slave and wants one log line,
	// not N.
	Errs struct {
		errs []error
		cnt  int64
		mu   sync.Mutex
	}
)

func NewErrNotFound(format string, a ...any) *ErrNotFound {
	return &ErrNotFound{fmt.Sprintf(format, a...)}
}

func (e *ErrNotFound) Error() string { return e.what + " does not exist" }

func IsErrNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}

const maxErrs = 4

func (e *Errs) Add(err error) {
	debug.Assert(err != nil)
	e.mu.Lock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			e.mu.Unlock()
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
		ratomic.StoreInt64(&e.cnt, int64(len(e.errs)))
	}
	e.mu.Unlock()
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

func (e *Errs) JoinErr() (cnt int, err error) {
	if cnt = e.Cnt(); cnt > 0 {
		e.mu.Lock()
		err = errors.Join(e.errs...)
		e.mu.Unlock()
	}
	return
}
