package project

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGPIOConfigureWritesSysfs(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "export"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "gpio17"), 0o755); err != nil {
		t.Fatal(err)
	}
	sink := &countingSink{}
	src := NewGPIOPulseSource(17, sink)
	src.root = root

	valuePath, err := src.configure()
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if valuePath != filepath.Join(root, "gpio17", "value") {
		t.Fatalf("unexpected value path %s", valuePath)
	}
	edge, _ := os.ReadFile(filepath.Join(root, "gpio17", "edge"))
	direction, _ := os.ReadFile(filepath.Join(root, "gpio17", "direction"))
	if string(edge) != "rising" || string(direction) != "in" {
		t.Fatalf("unexpected sysfs setup edge=%q direction=%q", edge, direction)
	}

	src.onEdge(true)
	src.onEdge(true)
	if sink.total != 2 {
		t.Fatalf("each edge is one pulse, got %d", sink.total)
	}
}

func TestGPIOConfigureMissingPin(t *testing.T) {
	src := NewGPIOPulseSource(3, &countingSink{})
	src.root = filepath.Join(t.TempDir(), "missing")
	if _, err := src.configure(); err == nil {
		t.Fatalf("expected export error")
	}
}

func TestGPIORunoutLevels(t *testing.T) {
	var got []bool
	src := NewGPIORunoutSource(5, false, func(present bool) { got = append(got, present) })
	src.onEdge(false)
	src.onEdge(true)
	if len(got) != 2 || !got[0] || got[1] {
		t.Fatalf("active-low switch decoded wrong: %v", got)
	}
	if src.edge != "both" {
		t.Fatalf("runout switches watch both edges")
	}
}

func TestParseGPIOValue(t *testing.T) {
	if v, err := parseGPIOValue([]byte("1\n")); err != nil || !v {
		t.Fatalf("expected high level")
	}
	if v, err := parseGPIOValue([]byte("0\n")); err != nil || v {
		t.Fatalf("expected low level")
	}
	if _, err := parseGPIOValue([]byte("x")); err == nil {
		t.Fatalf("expected error")
	}
}
