//go:build linux
// +build linux

package epoll

import (
	"golang.org/x/sys/unix"
)

const (
	EPOLLIN  = unix.EPOLLIN
	EPOLLPRI = unix.EPOLLPRI
	EPOLLERR = unix.EPOLLERR
	EPOLLHUP = unix.EPOLLHUP
	EPOLLOUT = unix.EPOLLOUT
)

type Event struct {
	Events uint32
	Fd     int32
}

type EPoll struct {
	fd     int
	events []unix.EpollEvent
}

func NewEPoll() (*EPoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &EPoll{fd: fd, events: make([]unix.EpollEvent, 16)}, nil
}

func (e *EPoll) Close() error {
	return unix.Close(e.fd)
}

func (e *EPoll) Register(fd int, op uint32) error {
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: op, Fd: int32(fd)})
}

func (e *EPoll) Unregister(fd int) error {
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (e *EPoll) Modify(fd int, op uint32) error {
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: op, Fd: int32(fd)})
}

// Epoll waits up to timeout seconds; a negative timeout blocks. EINTR is
// reported as zero events.
func (e *EPoll) Epoll(timeout float64) ([]Event, int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout * 1000)
	}
	n, err := unix.EpollWait(e.fd, e.events, ms)
	if err == unix.EINTR {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		out[i] = Event{Events: e.events[i].Events, Fd: e.events[i].Fd}
	}
	return out, n, nil
}
