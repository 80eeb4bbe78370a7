package queue

import (
	"container/list"
	"sync"
)

// Queue is a FIFO shared between a producer that must never block and a
// consumer that waits on Notify. With a limit set the oldest row gives way.
type Queue[T any] struct {
	rows   *list.List
	lock   sync.Locker
	notify chan struct{}
	limit  int
}

// NewQueue returns a queue holding at most limit rows; older rows are
// dropped first. A non-positive limit means unbounded.
func NewQueue[T any](limit int) *Queue[T] {
	self := Queue[T]{}
	self.rows = list.New()
	self.lock = &sync.Mutex{}
	self.notify = make(chan struct{}, 1)
	self.limit = limit
	return &self
}

// Put_nowait appends data and reports whether an old row was dropped.
func (self *Queue[T]) Put_nowait(data T) bool {
	self.lock.Lock()
	dropped := false
	self.rows.PushBack(data)
	if self.limit > 0 && self.rows.Len() > self.limit {
		self.rows.Remove(self.rows.Front())
		dropped = true
	}
	self.lock.Unlock()
	select {
	case self.notify <- struct{}{}:
	default:
	}
	return dropped
}

func (self *Queue[T]) Get_nowait() (T, bool) {
	self.lock.Lock()
	defer self.lock.Unlock()
	var zero T
	front := self.rows.Front()
	if front == nil {
		return zero, false
	}
	ret := front.Value.(T)
	self.rows.Remove(front)
	return ret, true
}

// Drain removes and returns everything queued.
func (self *Queue[T]) Drain() []T {
	self.lock.Lock()
	defer self.lock.Unlock()
	out := make([]T, 0, self.rows.Len())
	for e := self.rows.Front(); e != nil; e = self.rows.Front() {
		out = append(out, e.Value.(T))
		self.rows.Remove(e)
	}
	return out
}

// Notify fires at least once after each Put_nowait.
func (self *Queue[T]) Notify() <-chan struct{} {
	return self.notify
}

func (self *Queue[T]) Is_empty() bool {
	self.lock.Lock()
	defer self.lock.Unlock()
	return !(self.rows.Len() > 0)
}

func (self *Queue[T]) Len() int {
	self.lock.Lock()
	defer self.lock.Unlock()
	return self.rows.Len()
}
