package project

import (
	"context"
	"strings"
	"testing"
)

type countingSink struct {
	total uint32
}

func (c *countingSink) AddPulses(n uint32) {
	c.total += n
}

func TestParseSerialLine(t *testing.T) {
	key, value, err := parseSerialLine(" pulses = 42\r")
	if err != nil || key != "pulses" || value != 42 {
		t.Fatalf("unexpected parse %q %d %v", key, value, err)
	}
	for _, bad := range []string{"", "pulses", "speed=3", "pulses=-1", "pulses=abc"} {
		if _, _, err := parseSerialLine(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestSerialPulseSourceFeedsSink(t *testing.T) {
	clock := NewManualClock(0)
	sink := &countingSink{}
	var present []bool
	src := NewSerialPulseSource("/dev/null", 0, clock, sink, func(p bool) { present = append(present, p) })

	input := "pulses=10\npulses=13\ngarbage\npresent=0\npulses=20\n"
	ctx, cancel := context.WithCancel(context.Background())
	// strings.Reader reports EOF forever, so stop after the first pass
	r := &cancelAtEOF{Reader: strings.NewReader(input), cancel: cancel}
	if err := src.readLines(ctx, r); err != nil {
		t.Fatalf("readLines: %v", err)
	}
	if sink.total != 10 {
		t.Fatalf("expected 10 pulses after baseline, got %d", sink.total)
	}
	if len(present) != 1 || present[0] {
		t.Fatalf("expected one runout report, got %v", present)
	}
}

type cancelAtEOF struct {
	*strings.Reader
	cancel context.CancelFunc
}

func (c *cancelAtEOF) Read(p []byte) (int, error) {
	n, err := c.Reader.Read(p)
	if err != nil {
		c.cancel()
	}
	return n, err
}

func TestSerialPulseSourceSurvivesBoardRestart(t *testing.T) {
	clock := NewManualClock(0)
	monitor := NewFilamentMonitor(clock, DefaultMonitorConfig(), nil)
	src := NewSerialPulseSource("/dev/null", 0, clock, monitor, nil)

	for _, line := range []string{"pulses=1000", "pulses=1004", "pulses=999", "pulses=0", "pulses=2"} {
		src.handleLine(line)
	}
	if got := monitor.MovementPulses(); got != 6 {
		t.Fatalf("a restarted counter must not flood the monitor, got %d pulses", got)
	}
}
