package project

const (
	BucketSizeMs    = 250
	DefaultWindowMs = 5000
	maxWindowMs     = 60000
)

type bucket struct {
	mm       float64
	openedMs uint32
	lastMs   uint32
	used     bool
}

// BucketRing accumulates millimetres into fixed-width time slots covering a
// rolling window. The head bucket advances by elapsed time from the time it
// was opened, so the 32-bit clock wrap does not disturb slot order. A bucket
// opened outside [now - window, now] reads as zero.
type BucketRing struct {
	buckets      []bucket
	windowMs     uint32
	head         int
	headOpenedMs uint32
	hasHead      bool
}

func NewBucketRing(windowMs uint32) *BucketRing {
	if windowMs < BucketSizeMs {
		windowMs = DefaultWindowMs
	}
	if windowMs > maxWindowMs {
		windowMs = maxWindowMs
	}
	count := windowMs / BucketSizeMs
	return &BucketRing{
		buckets:  make([]bucket, count),
		windowMs: count * BucketSizeMs,
	}
}

func (r *BucketRing) WindowMs() uint32 {
	return r.windowMs
}

func (r *BucketRing) Capacity() int {
	return len(r.buckets)
}

func (r *BucketRing) Add(now uint32, mm float64) {
	if !r.hasHead {
		r.open(0, now)
	} else if age := ElapsedMs(now, r.headOpenedMs); age >= BucketSizeMs && age < 1<<31 {
		// ages past 2^31 mean the clock stepped back; keep writing the head
		steps := age / BucketSizeMs
		if steps >= uint32(len(r.buckets)) {
			r.Clear()
			r.open(0, now)
		} else {
			for i := uint32(1); i < steps; i++ {
				r.buckets[(r.head+int(i))%len(r.buckets)] = bucket{}
			}
			r.open((r.head+int(steps))%len(r.buckets), r.headOpenedMs+steps*BucketSizeMs)
		}
	}
	b := &r.buckets[r.head]
	b.mm += mm
	b.lastMs = now
}

func (r *BucketRing) open(index int, openedMs uint32) {
	r.head = index
	r.headOpenedMs = openedMs
	r.hasHead = true
	r.buckets[index] = bucket{openedMs: openedMs, used: true}
}

func (r *BucketRing) fresh(b *bucket, now uint32) bool {
	return b.used && ElapsedMs(now, b.openedMs) <= r.windowMs
}

// Sum returns the total of all non-stale buckets. Buckets stamped in the
// future relative to now (clock went backwards) wrap to a huge age and are
// treated as stale.
func (r *BucketRing) Sum(now uint32) float64 {
	total := 0.0
	for i := range r.buckets {
		if r.fresh(&r.buckets[i], now) {
			total += r.buckets[i].mm
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

// LastWriteMs reports the newest write inside the window.
func (r *BucketRing) LastWriteMs(now uint32) (uint32, bool) {
	var newest uint32
	found := false
	for i := range r.buckets {
		b := &r.buckets[i]
		if !r.fresh(b, now) {
			continue
		}
		if !found || ElapsedMs(now, b.lastMs) < ElapsedMs(now, newest) {
			newest = b.lastMs
			found = true
		}
	}
	return newest, found
}

func (r *BucketRing) Clear() {
	for i := range r.buckets {
		r.buckets[i] = bucket{}
	}
	r.head = 0
	r.hasHead = false
}
