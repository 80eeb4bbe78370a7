//go:build linux
// +build linux

package epoll

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestEPollReportsReadablePipe(t *testing.T) {
	ep, err := NewEPoll()
	if err != nil {
		t.Fatalf("NewEPoll: %v", err)
	}
	defer ep.Close()

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	if err := ep.Register(fds[0], EPOLLIN); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, n, err := ep.Epoll(0); err != nil || n != 0 {
		t.Fatalf("expected no events yet, got %d (%v)", n, err)
	}
	if _, err := unix.Write(fds[1], []byte{1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	events, n, err := ep.Epoll(1)
	if err != nil || n != 1 {
		t.Fatalf("expected one event, got %d (%v)", n, err)
	}
	if int(events[0].Fd) != fds[0] || events[0].Events&EPOLLIN == 0 {
		t.Fatalf("unexpected event %+v", events[0])
	}
	if err := ep.Unregister(fds[0]); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
}
