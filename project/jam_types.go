package project

import "fmt"

type DetectionMode int

const (
	DetectionBoth DetectionMode = iota
	DetectionHardOnly
	DetectionSoftOnly
)

func (m DetectionMode) String() string {
	switch m {
	case DetectionHardOnly:
		return "hard_only"
	case DetectionSoftOnly:
		return "soft_only"
	default:
		return "both"
	}
}

func (m DetectionMode) allowsHard() bool {
	return m != DetectionSoftOnly
}

func (m DetectionMode) allowsSoft() bool {
	return m != DetectionHardOnly
}

// GraceState codes are part of the status API: 0 Idle .. 4 Jammed.
type GraceState int

const (
	GraceIdle GraceState = iota
	GraceStartGrace
	GraceResumeGrace
	GraceActive
	GraceJammed
)

func (g GraceState) String() string {
	switch g {
	case GraceIdle:
		return "Idle"
	case GraceStartGrace:
		return "Start Grace"
	case GraceResumeGrace:
		return "Resume Grace"
	case GraceActive:
		return "Active"
	case GraceJammed:
		return "Jammed"
	}
	return fmt.Sprintf("GraceState(%d)", int(g))
}

const (
	DefaultRatioThreshold  = 0.25
	DefaultHardPassRatio   = 0.10
	DefaultSoftJamTimeMs   = 10000
	DefaultHardJamTimeMs   = 5000
	DefaultGraceTimeMs     = 5000
	DefaultStartTimeoutMs  = 10000
	DefaultCheckIntervalMs = 1000

	minHardWindowExpectedMm = 1.0
	minSoftPerCheckMm       = 0.25
	minSoftDeficitMm        = 0.5
	pulseRecencySlackMs     = 500
)

// JamConfig is the per-evaluation detector configuration. Out of range
// values are clamped by Normalized, never reported as errors.
type JamConfig struct {
	RatioThreshold float64
	// Deprecated: superseded by the fixed 1mm minimum hard-jam window.
	HardJamMm       float64
	SoftJamTimeMs   int
	HardJamTimeMs   int
	GraceTimeMs     int
	StartTimeoutMs  int
	DetectionMode   DetectionMode
	CheckIntervalMs int
	// HardPassRatio is the near-zero flow cutoff; deployments tune it 0.10-0.35.
	HardPassRatio float64
}

func DefaultJamConfig() JamConfig {
	return JamConfig{
		RatioThreshold:  DefaultRatioThreshold,
		HardJamMm:       5,
		SoftJamTimeMs:   DefaultSoftJamTimeMs,
		HardJamTimeMs:   DefaultHardJamTimeMs,
		GraceTimeMs:     DefaultGraceTimeMs,
		StartTimeoutMs:  DefaultStartTimeoutMs,
		DetectionMode:   DetectionBoth,
		CheckIntervalMs: DefaultCheckIntervalMs,
		HardPassRatio:   DefaultHardPassRatio,
	}
}

func (c JamConfig) Normalized() JamConfig {
	if c.RatioThreshold <= 0 {
		c.RatioThreshold = DefaultRatioThreshold
	}
	if c.RatioThreshold > 1 {
		c.RatioThreshold = 1
	}
	if c.HardPassRatio <= 0 || c.HardPassRatio > 1 {
		c.HardPassRatio = DefaultHardPassRatio
	}
	if c.SoftJamTimeMs <= 0 {
		c.SoftJamTimeMs = DefaultSoftJamTimeMs
	}
	if c.HardJamTimeMs <= 0 {
		c.HardJamTimeMs = DefaultHardJamTimeMs
	}
	if c.GraceTimeMs < 0 {
		c.GraceTimeMs = 0
	}
	if c.StartTimeoutMs < 0 {
		c.StartTimeoutMs = 0
	}
	if c.DetectionMode < DetectionBoth || c.DetectionMode > DetectionSoftOnly {
		c.DetectionMode = DetectionBoth
	}
	return c
}

// JamInput carries one evaluation's windowed signals.
type JamInput struct {
	ExpectedMm           float64
	ActualMm             float64
	PulseCount           uint32
	Printing             bool
	HasTelemetry         bool
	ExpectedRateMmPerSec float64
	ActualRateMmPerSec   float64
	// TrackerGrace is MotionTracker.IsWithinGracePeriod(GraceTimeMs).
	TrackerGrace bool
}

// JamState is an immutable snapshot produced by each evaluation.
type JamState struct {
	Jammed               bool
	HardJamTriggered     bool
	SoftJamTriggered     bool
	HardJamPercent       float64
	SoftJamPercent       float64
	PassRatio            float64
	Deficit              float64
	GraceState           GraceState
	GraceActive          bool
	ExpectedRateMmPerSec float64
	ActualRateMmPerSec   float64

	ExpectedMm           float64
	ActualMm             float64
	HardJamAccumulatedMs uint32
	SoftJamAccumulatedMs uint32
	SoftJamDeficitMm     float64
}

func (s JamState) Reason() string {
	switch {
	case s.HardJamTriggered && s.SoftJamTriggered:
		return "hard+soft"
	case s.HardJamTriggered:
		return "hard"
	case s.SoftJamTriggered:
		return "soft"
	}
	return ""
}
