// Package proc implements the shared processing thread: a single worker
// woken by a coalescing bitflag mask, matching the original source's
// proc_thread.c flag semantics.
package proc

import "sync"

// Flag is a bit in the worker's wake-up mask.
type Flag uint32

const (
	// FlagKill asks the worker to exit after its next wakeup.
	FlagKill Flag = 1 << iota
	// FlagAudio signals that at least one session has audio ready to drain.
	FlagAudio
	// FlagFlush signals a pending flush request.
	FlagFlush
)

// Callback is invoked once per wakeup with the set of flags observed
// (after FlagKill's own signalling concerns are handled by the Thread).
type Callback func(flags Flag)

// Thread is a single worker goroutine with a coalescing bitflag wake-up:
// multiple Raise calls between wakeups collapse into one callback
// invocation carrying the OR of all raised flags.
type Thread struct {
	mu      sync.Mutex
	cond    *sync.Cond
	flags   Flag
	done    chan struct{}
	started bool
}

// New creates a Thread and starts its worker goroutine, invoking cb once
// per coalesced wakeup.
func New(cb Callback) *Thread {
	t := &Thread{done: make(chan struct{})}
	t.cond = sync.NewCond(&t.mu)
	t.started = true
	go t.run(cb)
	return t
}

func (t *Thread) run(cb Callback) {
	defer close(t.done)
	for {
		t.mu.Lock()
		for t.flags == 0 {
			t.cond.Wait()
		}
		flags := t.flags
		t.flags = 0
		t.mu.Unlock()

		if flags&FlagKill != 0 {
			return
		}
		cb(flags)
	}
}

// Raise ORs flag into the pending mask and wakes the worker. It never
// blocks on the worker actually running; raises coalesce.
func (t *Thread) Raise(flag Flag) {
	t.mu.Lock()
	t.flags |= flag
	t.mu.Unlock()
	t.cond.Signal()
}

// Terminate raises FlagKill and blocks until the worker has returned from
// any in-flight callback and exited. It is safe to call more than once.
func (t *Thread) Terminate() {
	t.Raise(FlagKill)
	<-t.done
}
