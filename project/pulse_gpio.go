package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultSysfsGPIORoot = "/sys/class/gpio"

// GPIOEdgeSource watches a sysfs GPIO line and reports edges. Movement
// sensors use rising edges and count each one as a pulse; runout switches
// use both edges and report the line level.
type GPIOEdgeSource struct {
	root   string
	pin    int
	edge   string
	onEdge func(level bool)
}

func NewGPIOPulseSource(pin int, sink PulseSink) *GPIOEdgeSource {
	return &GPIOEdgeSource{
		root: defaultSysfsGPIORoot,
		pin:  pin,
		edge: "rising",
		onEdge: func(bool) {
			sink.AddPulses(1)
		},
	}
}

// NewGPIORunoutSource reports filament presence; activeHigh selects the
// level that means filament is loaded.
func NewGPIORunoutSource(pin int, activeHigh bool, onRunout func(present bool)) *GPIOEdgeSource {
	return &GPIOEdgeSource{
		root: defaultSysfsGPIORoot,
		pin:  pin,
		edge: "both",
		onEdge: func(level bool) {
			onRunout(level == activeHigh)
		},
	}
}

func (self *GPIOEdgeSource) pinDir() string {
	return filepath.Join(self.root, fmt.Sprintf("gpio%d", self.pin))
}

// configure exports the pin and arms edge interrupts.
func (self *GPIOEdgeSource) configure() (string, error) {
	dir := self.pinDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.WriteFile(filepath.Join(self.root, "export"), []byte(strconv.Itoa(self.pin)), 0o200); err != nil {
			return "", fmt.Errorf("export gpio%d: %w", self.pin, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "direction"), []byte("in"), 0o644); err != nil {
		return "", fmt.Errorf("gpio%d direction: %w", self.pin, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "edge"), []byte(self.edge), 0o644); err != nil {
		return "", fmt.Errorf("gpio%d edge: %w", self.pin, err)
	}
	return filepath.Join(dir, "value"), nil
}

func parseGPIOValue(b []byte) (bool, error) {
	switch strings.TrimSpace(string(b)) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	return false, fmt.Errorf("unexpected gpio value %q", b)
}
