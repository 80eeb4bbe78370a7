package project

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harpua555/OpenFilamentSensor/common/logger"
	"github.com/harpua555/OpenFilamentSensor/project/history"
	"github.com/harpua555/OpenFilamentSensor/project/queue"
	uuid "github.com/satori/go.uuid"
)

// LossBehavior selects what happens when printer telemetry goes quiet.
type LossBehavior int

const (
	LossPause  LossBehavior = 1
	LossIgnore LossBehavior = 2
)

const (
	DefaultMmPerPulse       = 2.88
	DefaultTelemetryStaleMs = 1000
	minTelemetryStaleMs     = 250
	telemetryLossPauseMs    = 10000
	jamEventQueueLimit      = 256

	ReasonRunout        = "runout"
	ReasonTelemetryLoss = "telemetry_loss"
)

type MonitorConfig struct {
	Jam              JamConfig
	MmPerPulse       float64
	Enabled          bool
	PauseOnRunout    bool
	SuppressPause    bool
	TelemetryStaleMs uint32
	LossBehavior     LossBehavior
	WindowMs         uint32
	TelemetryGapMs   uint32
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Jam:              DefaultJamConfig(),
		MmPerPulse:       DefaultMmPerPulse,
		Enabled:          true,
		PauseOnRunout:    true,
		TelemetryStaleMs: DefaultTelemetryStaleMs,
		LossBehavior:     LossIgnore,
		WindowMs:         DefaultWindowMs,
		TelemetryGapMs:   DefaultTelemetryGapMs,
	}
}

// Telemetry is one printer status sample.
type Telemetry struct {
	TotalExtrusionMm float64 `json:"total_extrusion_mm"`
	Printing         bool    `json:"printing"`
	Paused           bool    `json:"paused"`
	FilamentPresent  *bool   `json:"filament_present,omitempty"`
}

// FilamentMonitor wires telemetry, pulses, the tracker and the detector
// together and decides when to stop the printer.
//
// OnPulse may be called from a pulse source goroutine; every other method
// is serialised by an internal mutex.
type FilamentMonitor struct {
	mu       sync.Mutex
	clock    Clock
	cfg      MonitorConfig
	tracker  *MotionTracker
	detector *JamStateMachine
	control  PrinterControl
	events   *queue.Queue[history.JamEvent]

	mmPerPulseBits atomic.Uint64
	pulses         atomic.Uint32

	bootMs          uint32
	printing        bool
	paused          bool
	telemetrySeen   bool
	lastTelemetryMs uint32
	lastExtrusionMm float64
	expectedDelta   float64

	filamentPresent bool
	runoutLatched   bool
	lossLatched     bool
	suppressLogged  bool
	pendingJam      bool
	pendingState    JamState

	lastState JamState
}

func NewFilamentMonitor(clock Clock, cfg MonitorConfig, control PrinterControl) *FilamentMonitor {
	cfg = normalizeMonitorConfig(cfg)
	self := &FilamentMonitor{
		clock:           clock,
		cfg:             cfg,
		tracker:         NewMotionTracker(clock, cfg.WindowMs, cfg.TelemetryGapMs),
		detector:        NewJamStateMachine(),
		control:         control,
		events:          queue.NewQueue[history.JamEvent](jamEventQueueLimit),
		bootMs:          clock.Millis(),
		filamentPresent: true,
	}
	self.mmPerPulseBits.Store(math.Float64bits(cfg.MmPerPulse))
	self.lastState = self.detector.State()
	return self
}

func normalizeMonitorConfig(cfg MonitorConfig) MonitorConfig {
	if cfg.MmPerPulse <= 0 {
		cfg.MmPerPulse = DefaultMmPerPulse
	}
	if cfg.TelemetryStaleMs < minTelemetryStaleMs {
		cfg.TelemetryStaleMs = minTelemetryStaleMs
	}
	if cfg.LossBehavior != LossPause {
		cfg.LossBehavior = LossIgnore
	}
	return cfg
}

// SetConfig applies new settings without resetting the print.
func (self *FilamentMonitor) SetConfig(cfg MonitorConfig) {
	cfg = normalizeMonitorConfig(cfg)
	self.mu.Lock()
	defer self.mu.Unlock()
	// window sizes only take effect on the next tracker rebuild
	cfg.WindowMs = self.cfg.WindowMs
	cfg.TelemetryGapMs = self.cfg.TelemetryGapMs
	self.cfg = cfg
	self.suppressLogged = false
	self.mmPerPulseBits.Store(math.Float64bits(cfg.MmPerPulse))
}

func (self *FilamentMonitor) Config() MonitorConfig {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.cfg
}

// Events is the queue of recorded jam episodes for history writers.
func (self *FilamentMonitor) Events() *queue.Queue[history.JamEvent] {
	return self.events
}

// OnPulse records one sensor pulse.
func (self *FilamentMonitor) OnPulse() {
	self.AddPulses(1)
}

// AddPulses records n pulses reported together by a counting source.
func (self *FilamentMonitor) AddPulses(n uint32) {
	if n == 0 {
		return
	}
	count := self.pulses.Add(n)
	self.tracker.AddSensorPulses(n, math.Float64frombits(self.mmPerPulseBits.Load()))
	if logger.PinLogging() {
		logger.Debugf("movement pulses +%d total %d", n, count)
	}
}

func (self *FilamentMonitor) MovementPulses() uint32 {
	return self.pulses.Load()
}

// OnTelemetry feeds one printer status sample. A not-printing to printing
// edge starts a new print; paused to printing is a resume.
func (self *FilamentMonitor) OnTelemetry(t Telemetry) {
	now := self.clock.Millis()
	self.mu.Lock()
	wasPrinting, wasPaused := self.printing, self.paused
	self.telemetrySeen = true
	self.lastTelemetryMs = now
	self.lossLatched = false

	clearPause := false
	switch {
	case t.Printing && !wasPrinting:
		self.startPrintLocked(now)
		clearPause = true
	case t.Printing && wasPaused && !t.Paused:
		self.resumeLocked(now, t.TotalExtrusionMm)
		clearPause = true
	}
	self.printing, self.paused = t.Printing, t.Paused

	if t.Printing && !t.Paused {
		if self.tracker.IsInitialized() {
			self.expectedDelta = t.TotalExtrusionMm - self.lastExtrusionMm
		}
		self.tracker.UpdateExpectedPosition(t.TotalExtrusionMm)
	}
	self.lastExtrusionMm = t.TotalExtrusionMm
	self.mu.Unlock()

	if clearPause && self.control != nil {
		self.control.ClearPause()
	}
	if t.FilamentPresent != nil {
		self.OnRunout(*t.FilamentPresent)
	}
}

func (self *FilamentMonitor) startPrintLocked(now uint32) {
	logger.Infof("print started, jam detection armed")
	self.flushPendingLocked()
	self.tracker.Reset()
	self.detector.Reset(now)
	self.detector.ClearPauseRequest()
	self.lastState = self.detector.State()
	self.expectedDelta = 0
	self.runoutLatched = false
}

func (self *FilamentMonitor) resumeLocked(now uint32, totalExtrusionMm float64) {
	logger.Infof("print resumed at %.2fmm", totalExtrusionMm)
	self.flushPendingLocked()
	self.tracker.Rebaseline(totalExtrusionMm)
	self.detector.OnResume(now, self.pulses.Load(), totalExtrusionMm)
	self.detector.ClearPauseRequest()
	self.lastState = self.detector.State()
	self.runoutLatched = false
}

// flushPendingLocked records a jam whose pause never went out before the
// detector is reset underneath it.
func (self *FilamentMonitor) flushPendingLocked() {
	if self.pendingJam {
		self.pendingJam = false
		self.recordEvent(self.pendingState.Reason(), self.pendingState, false)
	}
}

// OnRunout reports the runout switch level. Losing filament while printing
// pauses once per episode when pause_on_runout is set.
func (self *FilamentMonitor) OnRunout(present bool) {
	self.mu.Lock()
	changed := present != self.filamentPresent
	self.filamentPresent = present
	if present {
		self.runoutLatched = false
	}
	fire := !present && !self.runoutLatched && self.printing && !self.paused && self.cfg.PauseOnRunout
	if fire {
		self.runoutLatched = true
	}
	canPause := self.canPauseLocked()
	st := self.lastState
	self.mu.Unlock()

	if changed {
		logger.Infof("filament sensor: present=%v", present)
	}
	if !fire {
		return
	}
	logger.Warnf("filament runout detected while printing")
	sent := canPause && self.sendPause(context.Background(), ReasonRunout, st)
	self.recordEvent(ReasonRunout, st, sent)
}

func (self *FilamentMonitor) canPauseLocked() bool {
	return self.cfg.Enabled && !self.cfg.SuppressPause && self.control != nil
}

// Evaluate runs one detector step and issues at most one pause command per
// jam episode.
func (self *FilamentMonitor) Evaluate(ctx context.Context) JamState {
	now := self.clock.Millis()
	self.mu.Lock()
	snap := self.tracker.Snapshot()
	hasTelemetry := self.telemetrySeen && ElapsedMs(now, self.lastTelemetryMs) <= self.cfg.TelemetryStaleMs
	in := JamInput{
		ExpectedMm:           snap.ExpectedMm,
		ActualMm:             snap.ActualMm,
		PulseCount:           self.pulses.Load(),
		Printing:             self.printing && !self.paused,
		HasTelemetry:         hasTelemetry,
		ExpectedRateMmPerSec: snap.ExpectedRateMmPerSec,
		ActualRateMmPerSec:   snap.ActualRateMmPerSec,
		TrackerGrace:         self.tracker.IsWithinGracePeriod(uint32(max(self.cfg.Jam.GraceTimeMs, 0))),
	}
	wasJammed := self.lastState.Jammed
	st := self.detector.Update(in, now, self.cfg.Jam)
	self.lastState = st

	newJam := st.Jammed && !wasJammed
	pauseJam := false
	if st.Jammed && !self.detector.IsPauseRequested() {
		if self.canPauseLocked() {
			self.detector.SetPauseRequested()
			pauseJam = true
		} else if !self.suppressLogged {
			self.suppressLogged = true
			logger.Warnf("jam detected but pausing is disabled")
		}
	}

	lossPause := false
	if self.cfg.LossBehavior == LossPause && in.Printing && self.telemetrySeen && !self.lossLatched &&
		ElapsedMs(now, self.lastTelemetryMs) > telemetryLossPauseMs {
		self.lossLatched = true
		lossPause = true
	}
	canPause := self.canPauseLocked()
	self.mu.Unlock()

	sent := false
	if pauseJam {
		sent = self.sendPause(ctx, st.Reason(), st)
	}

	// a jam whose pause failed is recorded once the retry lands or the
	// episode ends, whichever comes first
	self.mu.Lock()
	if pauseJam && !sent {
		self.detector.ClearPauseRequest()
	}
	record, recorded := st, false
	switch {
	case newJam && pauseJam && !sent:
		self.pendingJam, self.pendingState = true, st
	case newJam:
		recorded = true
	case self.pendingJam && (sent || !st.Jammed):
		record, recorded = self.pendingState, true
		self.pendingJam = false
	}
	self.mu.Unlock()
	if recorded {
		self.recordEvent(record.Reason(), record, sent)
	}
	if lossPause {
		logger.Warnf("printer telemetry lost for more than %dms", telemetryLossPauseMs)
		lossSent := canPause && self.sendPause(ctx, ReasonTelemetryLoss, st)
		self.recordEvent(ReasonTelemetryLoss, st, lossSent)
	}
	return st
}

func (self *FilamentMonitor) sendPause(ctx context.Context, reason string, st JamState) bool {
	if err := self.control.Pause(ctx, PauseRequest{Reason: reason, State: st}); err != nil {
		logger.Errorf("pause (%s) failed: %v", reason, err)
		return false
	}
	return true
}

func (self *FilamentMonitor) recordEvent(reason string, st JamState, pauseSent bool) {
	ev := history.JamEvent{
		ID:             uuid.NewV4().String(),
		Timestamp:      time.Now().UTC(),
		Reason:         reason,
		ExpectedMm:     st.ExpectedMm,
		ActualMm:       st.ActualMm,
		DeficitMm:      st.Deficit,
		PassRatio:      st.PassRatio,
		HardJamPercent: st.HardJamPercent,
		SoftJamPercent: st.SoftJamPercent,
		MovementPulses: self.pulses.Load(),
		PauseSent:      pauseSent,
	}
	if self.events.Put_nowait(ev) {
		logger.Warnf("jam event queue full, oldest event dropped")
	}
}

// ClearPauseRequest re-arms the pause latch without touching the detector.
func (self *FilamentMonitor) ClearPauseRequest() {
	self.mu.Lock()
	self.detector.ClearPauseRequest()
	self.mu.Unlock()
	if self.control != nil {
		self.control.ClearPause()
	}
}

// Recalibrate drops the current windows; the next telemetry sample
// re-baselines the tracker.
func (self *FilamentMonitor) Recalibrate() {
	self.mu.Lock()
	defer self.mu.Unlock()
	logger.Infof("tracker recalibrated")
	self.tracker.Reset()
	self.expectedDelta = 0
}

func (self *FilamentMonitor) Status() SensorStatus {
	now := self.clock.Millis()
	self.mu.Lock()
	defer self.mu.Unlock()
	snap := self.tracker.Snapshot()
	st := self.lastState
	status := SensorStatus{
		Stopped:              st.Jammed,
		HardJamPercent:       st.HardJamPercent,
		SoftJamPercent:       st.SoftJamPercent,
		GraceActive:          st.GraceActive,
		GraceState:           int(st.GraceState),
		GraceStateName:       st.GraceState.String(),
		ExpectedFilament:     snap.ExpectedMm,
		ActualFilament:       snap.ActualMm,
		ExpectedDelta:        self.expectedDelta,
		CurrentDeficitMm:     snap.DeficitMm,
		PassRatio:            1,
		RatioThreshold:       self.cfg.Jam.Normalized().RatioThreshold,
		ExpectedRateMmPerSec: snap.ExpectedRateMmPerSec,
		ActualRateMmPerSec:   snap.ActualRateMmPerSec,
		MovementPulses:       self.pulses.Load(),
		FlowRatio:            snap.FlowRatio,
		JamReason:            st.Reason(),
		FilamentRunout:       !self.filamentPresent,
		Printing:             self.printing,
		Paused:               self.paused,
		PauseRequested:       self.detector.IsPauseRequested(),
		TelemetryActive:      self.telemetrySeen && ElapsedMs(now, self.lastTelemetryMs) <= self.cfg.TelemetryStaleMs,
		Enabled:              self.cfg.Enabled,
		UptimeMs:             ElapsedMs(now, self.bootMs),
	}
	if snap.ExpectedMm > 0 {
		status.PassRatio = math.Min(snap.ActualMm/snap.ExpectedMm, 1)
		status.DeficitRatio = snap.DeficitMm / snap.ExpectedMm
	}
	return status
}
