package lock

import (
	"sync"
	"testing"
)

func TestSpinLockSerializesWriters(t *testing.T) {
	var sl SpinLock
	var wg sync.WaitGroup
	counter := 0
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				sl.Lock()
				counter++
				sl.Unlock()
			}
		}()
	}
	wg.Wait()
	if counter != 8000 {
		t.Fatalf("expected 8000 increments, got %d", counter)
	}
}

func TestTryLock(t *testing.T) {
	var sl SpinLock
	if !sl.TryLock() {
		t.Fatalf("expected first TryLock to succeed")
	}
	if sl.TryLock() {
		t.Fatalf("expected TryLock on held lock to fail")
	}
	sl.Unlock()
	if !sl.TryLock() {
		t.Fatalf("expected TryLock after Unlock to succeed")
	}
}
