package history

import (
	"context"

	"go.uber.org/multierr"
)

// Fanout forwards every event to all sinks and reports the combined error.
type Fanout []Sink

func (f Fanout) SaveJam(ctx context.Context, ev JamEvent) error {
	var err error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		err = multierr.Append(err, sink.SaveJam(ctx, ev))
	}
	return err
}

func (f Fanout) Close() error {
	var err error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		err = multierr.Append(err, sink.Close())
	}
	return err
}
