package sys

import (
	"fmt"
	"runtime/debug"

	"github.com/harpua555/OpenFilamentSensor/common/logger"

	"github.com/petermattis/goid"
)

func GetGID() uint64 {
	return uint64(goid.Get())
}

// CatchPanic must be deferred directly. It logs the panic with the
// goroutine id and stack and stores it in *errp when errp is not nil.
func CatchPanic(errp *error) {
	if r := recover(); r != nil {
		logger.Errorf("panic in goroutine %d: %v\n%s", GetGID(), r, debug.Stack())
		if errp != nil {
			*errp = fmt.Errorf("recovered panic: %v", r)
		}
	}
}

// Guard runs fn and converts a panic into an error, so a failing
// worker stops the errgroup instead of the process.
func Guard(name string, fn func() error) func() error {
	return func() (err error) {
		defer CatchPanic(&err)
		logger.Debugf("%s running on goroutine %d", name, GetGID())
		return fn()
	}
}
