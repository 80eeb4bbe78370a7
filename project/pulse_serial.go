package project

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/harpua555/OpenFilamentSensor/common/logger"
	"github.com/tarm/serial"
)

const (
	OPEN_SERIAL_DEV_ERROR = "open serial pulse source error"
	serialRetryDelay      = time.Second
)

// SerialPulseSource reads a counter board that prints one record per line:
//
//	pulses=<raw 32-bit count>
//	present=<0|1>
type SerialPulseSource struct {
	name     string
	baud     int
	clock    Clock
	sink     PulseSink
	onRunout func(present bool)
	counter  *PulseCounter
}

func NewSerialPulseSource(name string, baud int, clock Clock, sink PulseSink, onRunout func(bool)) *SerialPulseSource {
	if baud <= 0 {
		baud = 115200
	}
	return &SerialPulseSource{
		name:     name,
		baud:     baud,
		clock:    clock,
		sink:     sink,
		onRunout: onRunout,
		counter:  NewPulseCounter(),
	}
}

// Run keeps the port open until ctx is done, reopening after errors.
func (self *SerialPulseSource) Run(ctx context.Context) error {
	for {
		cfg := &serial.Config{Name: self.name, Baud: self.baud, ReadTimeout: 500 * time.Millisecond}
		port, err := serial.OpenPort(cfg)
		if err != nil {
			logger.Errorf("%s %s: %s", OPEN_SERIAL_DEV_ERROR, self.name, err)
		} else {
			logger.Infof("serial pulse source %s open at %d baud", self.name, self.baud)
			err = self.readLines(ctx, port)
			port.Close()
			if err != nil {
				logger.Warnf("serial pulse source %s: %v", self.name, err)
			}
		}
		// a reconnected board restarts its counter
		self.counter.Reset()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(serialRetryDelay):
		}
	}
}

func (self *SerialPulseSource) readLines(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			// read timeout with no data surfaces as EOF on tarm/serial
			scanner = bufio.NewScanner(r)
			continue
		}
		self.handleLine(scanner.Text())
	}
}

func (self *SerialPulseSource) handleLine(line string) {
	key, value, err := parseSerialLine(line)
	if err != nil {
		logger.Debugf("serial pulse source: %v", err)
		return
	}
	switch key {
	case "pulses":
		if n := self.counter.Update(uint32(value), self.clock.Millis()); n > 0 && self.sink != nil {
			self.sink.AddPulses(n)
		}
	case "present":
		if self.onRunout != nil {
			self.onRunout(value != 0)
		}
	}
}

func parseSerialLine(line string) (string, uint64, error) {
	line = strings.TrimSpace(line)
	key, raw, ok := strings.Cut(line, "=")
	if !ok {
		return "", 0, fmt.Errorf("malformed line %q", line)
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key != "pulses" && key != "present" {
		return "", 0, fmt.Errorf("unknown key %q", key)
	}
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("bad value in %q: %w", line, err)
	}
	return key, value, nil
}
