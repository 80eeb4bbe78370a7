package queue

import "testing"

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int](0)
	if !q.Is_empty() {
		t.Fatalf("new queue should be empty")
	}
	for i := 1; i <= 3; i++ {
		q.Put_nowait(i)
	}
	if q.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", q.Len())
	}
	for want := 1; want <= 3; want++ {
		got, ok := q.Get_nowait()
		if !ok || got != want {
			t.Fatalf("expected %d, got %d (%v)", want, got, ok)
		}
	}
	if _, ok := q.Get_nowait(); ok {
		t.Fatalf("expected empty queue")
	}
}

func TestQueueLimitDropsOldest(t *testing.T) {
	q := NewQueue[string](2)
	q.Put_nowait("a")
	q.Put_nowait("b")
	if !q.Put_nowait("c") {
		t.Fatalf("expected a drop once the limit is exceeded")
	}
	rows := q.Drain()
	if len(rows) != 2 || rows[0] != "b" || rows[1] != "c" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if !q.Is_empty() {
		t.Fatalf("drain should empty the queue")
	}
}

func TestQueueNotify(t *testing.T) {
	q := NewQueue[int](0)
	q.Put_nowait(1)
	q.Put_nowait(2)
	select {
	case <-q.Notify():
	default:
		t.Fatalf("expected a pending notification")
	}
	select {
	case <-q.Notify():
		t.Fatalf("notifications coalesce")
	default:
	}
}
