package project

import (
	"github.com/harpua555/OpenFilamentSensor/common/lock"
	"github.com/harpua555/OpenFilamentSensor/common/utils/maths"
)

const (
	DefaultTelemetryGapMs = 2000
	extrusionEpsilonMm    = 0.01
	maxReportedFlowRatio  = 1.5
)

// MotionTracker compares expected filament travel (printer telemetry) with
// actual travel (sensor pulses) over a rolling window. The two sides are
// kept in independent bucket rings so that the planner-to-extruder latency
// does not need to line up within one evaluation.
//
// AddSensorPulse may be called from the pulse producer goroutine while the
// evaluation loop reads; every access to the rings goes through a SpinLock.
type MotionTracker struct {
	lock  lock.SpinLock
	clock Clock

	expected *BucketRing
	actual   *BucketRing
	gapMs    uint32

	initialized        bool
	firstPulseReceived bool
	initMs             uint32

	// grace anchor; only reset, resume and genuine telemetry gaps move it
	lastExpectedUpdateMs uint32
	lastTelemetryMs      uint32
	lastTotalExtrusionMm float64

	lastSensorPulseMs uint32
	totalSensorMm     float64
}

// TrackerSnapshot is one consistent read of the windows.
type TrackerSnapshot struct {
	Initialized          bool
	ExpectedMm           float64
	ActualMm             float64
	DeficitMm            float64
	ExpectedRateMmPerSec float64
	ActualRateMmPerSec   float64
	FlowRatio            float64
	TotalSensorMm        float64
	LastSensorPulseMs    uint32
}

// NewMotionTracker builds a tracker; zero windowMs/gapMs select the defaults.
func NewMotionTracker(clock Clock, windowMs, gapMs uint32) *MotionTracker {
	if windowMs == 0 {
		windowMs = DefaultWindowMs
	}
	if gapMs == 0 {
		gapMs = DefaultTelemetryGapMs
	}
	self := &MotionTracker{
		clock:    clock,
		expected: NewBucketRing(windowMs),
		actual:   NewBucketRing(windowMs),
		gapMs:    gapMs,
	}
	self.Reset()
	return self
}

func (self *MotionTracker) Reset() {
	self.lock.Lock()
	defer self.lock.Unlock()
	now := self.clock.Millis()
	self.expected.Clear()
	self.actual.Clear()
	self.initialized = false
	self.firstPulseReceived = false
	self.initMs = now
	self.lastExpectedUpdateMs = now
	self.lastTelemetryMs = now
	self.lastTotalExtrusionMm = 0
	self.lastSensorPulseMs = now
	self.totalSensorMm = 0
}

// UpdateExpectedPosition feeds the printer's absolute extruded length.
func (self *MotionTracker) UpdateExpectedPosition(totalExtrusionMm float64) {
	self.lock.Lock()
	defer self.lock.Unlock()
	now := self.clock.Millis()

	if !self.initialized {
		self.initialized = true
		self.initMs = now
		self.lastExpectedUpdateMs = now
		self.lastTelemetryMs = now
		self.lastTotalExtrusionMm = totalExtrusionMm
		return
	}

	if totalExtrusionMm < self.lastTotalExtrusionMm {
		// Retraction. Drop partial samples but leave the grace anchor alone,
		// otherwise retraction-heavy prints would never leave grace.
		self.expected.Clear()
		self.actual.Clear()
		self.lastTotalExtrusionMm = totalExtrusionMm
		self.lastTelemetryMs = now
		return
	}

	delta := totalExtrusionMm - self.lastTotalExtrusionMm
	if ElapsedMs(now, self.lastTelemetryMs) > self.gapMs && delta > extrusionEpsilonMm {
		self.lastExpectedUpdateMs = now
	}
	self.lastTelemetryMs = now

	// Sub-epsilon deltas stay pending so slow extrusion is not lost.
	if delta <= extrusionEpsilonMm {
		return
	}
	if self.firstPulseReceived {
		self.expected.Add(now, delta)
	}
	self.lastTotalExtrusionMm = totalExtrusionMm
}

// AddSensorPulse records one sensor pulse worth mmPerPulse.
func (self *MotionTracker) AddSensorPulse(mmPerPulse float64) {
	self.AddSensorPulses(1, mmPerPulse)
}

// AddSensorPulses records n pulses seen at once under a single lock.
func (self *MotionTracker) AddSensorPulses(n uint32, mmPerPulse float64) {
	if n == 0 || mmPerPulse <= 0 {
		return
	}
	mm := float64(n) * mmPerPulse
	self.lock.Lock()
	defer self.lock.Unlock()
	if !self.initialized {
		return
	}
	now := self.clock.Millis()
	self.lastSensorPulseMs = now
	if !self.firstPulseReceived {
		// priming and purge moves happen before the sensor ever turns
		self.firstPulseReceived = true
		self.expected.Clear()
		self.actual.Clear()
	}
	self.totalSensorMm += mm
	self.actual.Add(now, mm)
}

// Rebaseline restarts the comparison after a resume without a full reset.
func (self *MotionTracker) Rebaseline(totalExtrusionMm float64) {
	self.lock.Lock()
	defer self.lock.Unlock()
	now := self.clock.Millis()
	self.expected.Clear()
	self.actual.Clear()
	self.lastExpectedUpdateMs = now
	self.lastTelemetryMs = now
	if self.initialized {
		self.lastTotalExtrusionMm = totalExtrusionMm
	}
}

func (self *MotionTracker) windowDurationMs(now uint32) uint32 {
	alive := ElapsedMs(now, self.initMs)
	if alive < self.expected.WindowMs() {
		return alive
	}
	return self.expected.WindowMs()
}

func (self *MotionTracker) snapshotLocked(now uint32) TrackerSnapshot {
	snap := TrackerSnapshot{
		Initialized:       self.initialized,
		TotalSensorMm:     self.totalSensorMm,
		LastSensorPulseMs: self.lastSensorPulseMs,
	}
	if !self.initialized {
		return snap
	}
	snap.ExpectedMm = self.expected.Sum(now)
	snap.ActualMm = self.actual.Sum(now)
	snap.DeficitMm = maths.MaxFloat(0, snap.ExpectedMm-snap.ActualMm)
	if d := self.windowDurationMs(now); d > 0 {
		seconds := float64(d) / 1000
		snap.ExpectedRateMmPerSec = snap.ExpectedMm / seconds
		snap.ActualRateMmPerSec = snap.ActualMm / seconds
	}
	if snap.ExpectedMm > 0 {
		snap.FlowRatio = maths.Clamp(snap.ActualMm/snap.ExpectedMm, 0, maxReportedFlowRatio)
	}
	return snap
}

func (self *MotionTracker) Snapshot() TrackerSnapshot {
	self.lock.Lock()
	defer self.lock.Unlock()
	return self.snapshotLocked(self.clock.Millis())
}

func (self *MotionTracker) GetDeficit() float64 {
	return self.Snapshot().DeficitMm
}

func (self *MotionTracker) GetExpectedDistance() float64 {
	return self.Snapshot().ExpectedMm
}

func (self *MotionTracker) GetSensorDistance() float64 {
	return self.Snapshot().ActualMm
}

func (self *MotionTracker) GetWindowedRates() (expectedRate, actualRate float64) {
	snap := self.Snapshot()
	return snap.ExpectedRateMmPerSec, snap.ActualRateMmPerSec
}

// GetFlowRatio is actual/expected over the window, clamped to [0, 1.5].
func (self *MotionTracker) GetFlowRatio() float64 {
	return self.Snapshot().FlowRatio
}

func (self *MotionTracker) IsInitialized() bool {
	self.lock.Lock()
	defer self.lock.Unlock()
	return self.initialized
}

func (self *MotionTracker) IsWithinGracePeriod(gracePeriodMs uint32) bool {
	self.lock.Lock()
	defer self.lock.Unlock()
	if !self.initialized || gracePeriodMs == 0 {
		return false
	}
	return ElapsedMs(self.clock.Millis(), self.lastExpectedUpdateMs) < gracePeriodMs
}

func (self *MotionTracker) LastExpectedUpdateMs() uint32 {
	self.lock.Lock()
	defer self.lock.Unlock()
	return self.lastExpectedUpdateMs
}

func (self *MotionTracker) TotalSensorMm() float64 {
	self.lock.Lock()
	defer self.lock.Unlock()
	return self.totalSensorMm
}
