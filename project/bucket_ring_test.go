package project

import (
	"math"
	"testing"
)

func nearlyEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestNewBucketRingCapacity(t *testing.T) {
	cases := []struct {
		window   uint32
		capacity int
		windowMs uint32
	}{
		{0, 20, 5000},
		{5000, 20, 5000},
		{1000, 4, 1000},
		{1100, 4, 1000},
		{120000, 240, 60000},
	}
	for _, c := range cases {
		r := NewBucketRing(c.window)
		if r.Capacity() != c.capacity || r.WindowMs() != c.windowMs {
			t.Fatalf("window %d: got capacity %d window %d", c.window, r.Capacity(), r.WindowMs())
		}
	}
}

func TestBucketRingSumsWithinWindow(t *testing.T) {
	r := NewBucketRing(DefaultWindowMs)
	r.Add(0, 1.5)
	r.Add(100, 1.5)
	r.Add(600, 2)
	if !nearlyEqual(r.Sum(600), 5, 1e-9) {
		t.Fatalf("expected 5mm, got %f", r.Sum(600))
	}
	if !nearlyEqual(r.Sum(5000), 5, 1e-9) {
		t.Fatalf("bucket opened at window edge should still count, got %f", r.Sum(5000))
	}
	if !nearlyEqual(r.Sum(5001), 2, 1e-9) {
		t.Fatalf("first bucket should be stale, got %f", r.Sum(5001))
	}
	if r.Sum(6000) != 0 {
		t.Fatalf("everything should be stale, got %f", r.Sum(6000))
	}
}

func TestBucketRingRecyclesSlot(t *testing.T) {
	r := NewBucketRing(1000)
	r.Add(0, 3)
	// 1000ms later the same ring index is hit by a new slot
	r.Add(1000, 1)
	if !nearlyEqual(r.Sum(1000), 1, 1e-9) {
		t.Fatalf("recycled bucket should only hold the new sample, got %f", r.Sum(1000))
	}
}

func TestBucketRingLongRunningLocality(t *testing.T) {
	r := NewBucketRing(DefaultWindowMs)
	now := uint32(0)
	for i := 0; i < 2000; i++ {
		now += 100
		r.Add(now, 1)
	}
	// 100ms cadence, 5000ms window: at most 50 samples plus the partial
	// bucket at the window edge
	sum := r.Sum(now)
	if sum > 53 || sum < 45 {
		t.Fatalf("unexpected windowed sum %f", sum)
	}
	if r.Sum(now+DefaultWindowMs+BucketSizeMs) != 0 {
		t.Fatalf("old samples leaked past the window")
	}
}

func TestBucketRingWraparound(t *testing.T) {
	r := NewBucketRing(DefaultWindowMs)
	start := uint32(math.MaxUint32 - 255)
	r.Add(start, 2)
	now := start + 612 // wraps past zero
	r.Add(now, 3)
	if !nearlyEqual(r.Sum(now), 5, 1e-9) {
		t.Fatalf("expected both samples across wrap, got %f", r.Sum(now))
	}
	last, ok := r.LastWriteMs(now)
	if !ok || last != now {
		t.Fatalf("expected last write %d, got %d (%v)", now, last, ok)
	}
}

func TestBucketRingClockBackwards(t *testing.T) {
	r := NewBucketRing(DefaultWindowMs)
	r.Add(1000, 4)
	if r.Sum(500) != 0 {
		t.Fatalf("future buckets must read as zero")
	}
}

func TestBucketRingClear(t *testing.T) {
	r := NewBucketRing(DefaultWindowMs)
	r.Add(10, 4)
	r.Clear()
	if r.Sum(10) != 0 {
		t.Fatalf("expected empty ring after Clear")
	}
	if _, ok := r.LastWriteMs(10); ok {
		t.Fatalf("expected no last write after Clear")
	}
}

func TestBucketRingKeepsFreshBucketsAcrossWrap(t *testing.T) {
	r := NewBucketRing(DefaultWindowMs)
	now := uint32(math.MaxUint32 - 1000)
	r.Add(now, 1)
	for i := 0; i < 16; i++ {
		now += BucketSizeMs
		r.Add(now, 1)
	}
	// 17 writes spread over 4000ms all sit inside the window
	if !nearlyEqual(r.Sum(now), 17, 1e-9) {
		t.Fatalf("buckets lost across the clock wrap, got %f", r.Sum(now))
	}
}

func TestBucketRingSkipsClearedSlots(t *testing.T) {
	r := NewBucketRing(1000)
	r.Add(0, 1)
	r.Add(250, 1)
	r.Add(500, 1)
	// three slots ahead: the writes at 0 and 250 are recycled, 500 survives
	r.Add(1250, 5)
	if !nearlyEqual(r.Sum(1250), 6, 1e-9) {
		t.Fatalf("expected the 500ms write plus the new one, got %f", r.Sum(1250))
	}
}
