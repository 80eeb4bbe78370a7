package lock

import (
	"runtime"
	"sync/atomic"
)

// SpinLock guards very short critical sections shared with the pulse
// producer. Hold it only around a handful of field writes.
type SpinLock struct {
	state uint32
}

const maxBackOff = 16

func (sl *SpinLock) Lock() {
	backoff := 1
	for !atomic.CompareAndSwapUint32(&sl.state, 0, 1) {
		for i := 0; i < backoff; i++ {
			runtime.Gosched()
		}
		if backoff < maxBackOff {
			backoff <<= 1
		}
	}
}

func (sl *SpinLock) TryLock() bool {
	return atomic.CompareAndSwapUint32(&sl.state, 0, 1)
}

func (sl *SpinLock) Unlock() {
	atomic.StoreUint32(&sl.state, 0)
}
