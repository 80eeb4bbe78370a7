//go:build !linux
// +build !linux

package project

import (
	"context"

	"github.com/harpua555/OpenFilamentSensor/project/epoll"
)

func (self *GPIOEdgeSource) Run(ctx context.Context) error {
	return epoll.ErrUnsupported
}
