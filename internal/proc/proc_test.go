package proc

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCoalescingRaiseWakesOnce(t *testing.T) {
	var calls int32
	var seenFlags int32
	done := make(chan struct{})
	var first sync.Once

	th := New(func(flags Flag) {
		atomic.AddInt32(&calls, 1)
		first.Do(func() {
			atomic.StoreInt32(&seenFlags, int32(flags))
			close(done)
		})
	})
	defer th.Terminate()

	th.Raise(FlagAudio)
	th.Raise(FlagAudio)
	th.Raise(FlagFlush)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never invoked callback")
	}

	time.Sleep(20 * time.Millisecond) // allow a stray second call, if any, to land
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(2))
	assert.NotZero(t, atomic.LoadInt32(&seenFlags)&int32(FlagAudio))
}

func TestTerminateIsDeterministic(t *testing.T) {
	var running int32
	th := New(func(flags Flag) {
		atomic.StoreInt32(&running, 1)
		time.Sleep(10 * time.Millisecond)
		atomic.StoreInt32(&running, 0)
	})
	th.Raise(FlagAudio)
	time.Sleep(2 * time.Millisecond)
	th.Terminate()
	assert.Zero(t, atomic.LoadInt32(&running), "Terminate must not return until the worker has exited its callback")
}
