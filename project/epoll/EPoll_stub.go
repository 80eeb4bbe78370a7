//go:build !linux
// +build !linux

package epoll

import "errors"

const (
	EPOLLIN  = 0x1
	EPOLLPRI = 0x2
	EPOLLOUT = 0x4
	EPOLLERR = 0x8
	EPOLLHUP = 0x10
)

var ErrUnsupported = errors.New("epoll: unsupported on this platform")

type Event struct {
	Events uint32
	Fd     int32
}

type EPoll struct{}

func NewEPoll() (*EPoll, error) {
	return nil, ErrUnsupported
}

func (e *EPoll) Close() error {
	return nil
}

func (e *EPoll) Register(fd int, op uint32) error {
	return ErrUnsupported
}

func (e *EPoll) Unregister(fd int) error {
	return ErrUnsupported
}

func (e *EPoll) Modify(fd int, op uint32) error {
	return ErrUnsupported
}

func (e *EPoll) Epoll(timeout float64) ([]Event, int, error) {
	return nil, 0, ErrUnsupported
}
