//go:build linux
// +build linux

package project

import (
	"context"
	"fmt"

	"github.com/harpua555/OpenFilamentSensor/common/logger"
	"github.com/harpua555/OpenFilamentSensor/project/epoll"
	"golang.org/x/sys/unix"
)

const gpioPollTimeout = 0.25

// Run blocks until ctx is done, delivering one callback per edge.
func (self *GPIOEdgeSource) Run(ctx context.Context) error {
	valuePath, err := self.configure()
	if err != nil {
		return err
	}
	fd, err := unix.Open(valuePath, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", valuePath, err)
	}
	defer unix.Close(fd)

	ep, err := epoll.NewEPoll()
	if err != nil {
		return err
	}
	defer ep.Close()
	if err := ep.Register(fd, epoll.EPOLLPRI|epoll.EPOLLERR); err != nil {
		return fmt.Errorf("register gpio%d: %w", self.pin, err)
	}

	buf := make([]byte, 8)
	// the first read clears the pending edge sysfs reports on open
	if _, err := self.readLevel(fd, buf); err != nil {
		return err
	}
	logger.Infof("gpio%d armed for %s edges", self.pin, self.edge)
	for {
		if ctx.Err() != nil {
			return nil
		}
		_, n, err := ep.Epoll(gpioPollTimeout)
		if err != nil {
			return fmt.Errorf("gpio%d poll: %w", self.pin, err)
		}
		if n == 0 {
			continue
		}
		level, err := self.readLevel(fd, buf)
		if err != nil {
			logger.Warnf("gpio%d: %v", self.pin, err)
			continue
		}
		if logger.PinLogging() {
			logger.Debugf("gpio%d edge level=%v", self.pin, level)
		}
		self.onEdge(level)
	}
}

func (self *GPIOEdgeSource) readLevel(fd int, buf []byte) (bool, error) {
	n, err := unix.Pread(fd, buf, 0)
	if err != nil {
		return false, fmt.Errorf("read gpio%d: %w", self.pin, err)
	}
	return parseGPIOValue(buf[:n])
}
