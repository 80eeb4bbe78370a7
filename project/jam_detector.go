package project

import (
	"github.com/harpua555/OpenFilamentSensor/common/logger"
	"github.com/harpua555/OpenFilamentSensor/common/utils/maths"
)

// JamStateMachine turns windowed expected/actual distances into a latched
// jam decision.
//
//	IDLE --Reset--> START_GRACE --timeouts elapsed--> ACTIVE --trigger--> JAMMED
//	any --OnResume--> RESUME_GRACE --healthy movement or timeout--> ACTIVE
//	any --Update(!printing)--> IDLE
//
// Hard jams accumulate while almost no filament passes and only lose their
// progress when a real pulse shows up again. Soft jams need continuous
// evidence of under-extrusion and a minimum amount of missing filament.
//
// A JamStateMachine is not safe for concurrent use.
type JamStateMachine struct {
	grace GraceState
	state JamState

	printStartMs            uint32
	resumeMs                uint32
	resumePulseBaseline     uint32
	resumeExtrusionBaseline float64

	lastEvalMs uint32
	evaluated  bool

	lastPulseCount    uint32
	pulseCountSeen    bool
	lastPulseChangeMs uint32
	pulseChangeSeen   bool

	hardAccumulatedMs uint32
	softAccumulatedMs uint32
	softDeficitMm     float64
	hardTriggered     bool
	softTriggered     bool

	hardJamTimeMs uint32
	softJamTimeMs uint32

	pauseRequested bool
}

func NewJamStateMachine() *JamStateMachine {
	self := &JamStateMachine{
		hardJamTimeMs: DefaultHardJamTimeMs,
		softJamTimeMs: DefaultSoftJamTimeMs,
	}
	self.publish(JamInput{}, 0, 1)
	return self
}

// Reset arms the start grace period for a new print.
func (self *JamStateMachine) Reset(printStartMs uint32) {
	self.setGrace(GraceStartGrace)
	self.printStartMs = printStartMs
	self.evaluated = false
	self.pulseCountSeen = false
	self.pulseChangeSeen = false
	self.resumeExtrusionBaseline = 0
	self.clearEvidence()
	self.publish(JamInput{}, 0, 1)
}

// OnResume forces a short suppression window after a pause without
// discarding the print's start bookkeeping.
func (self *JamStateMachine) OnResume(nowMs uint32, pulseCount uint32, newBaseline float64) {
	self.setGrace(GraceResumeGrace)
	self.resumeMs = nowMs
	self.resumePulseBaseline = pulseCount
	self.resumeExtrusionBaseline = newBaseline
	self.lastPulseCount = pulseCount
	self.pulseCountSeen = true
	self.lastEvalMs = nowMs
	self.evaluated = true
	self.clearEvidence()
	self.publish(JamInput{}, 0, 1)
}

func (self *JamStateMachine) ResumeBaseline() (pulseCount uint32, extrusionMm float64) {
	return self.resumePulseBaseline, self.resumeExtrusionBaseline
}

func (self *JamStateMachine) State() JamState {
	return self.state
}

func (self *JamStateMachine) SetPauseRequested() {
	self.pauseRequested = true
}

func (self *JamStateMachine) ClearPauseRequest() {
	self.pauseRequested = false
}

func (self *JamStateMachine) IsPauseRequested() bool {
	return self.pauseRequested
}

// Update runs one evaluation. A non-positive CheckIntervalMs makes it a
// no-op that reports jammed=false.
func (self *JamStateMachine) Update(in JamInput, nowMs uint32, config JamConfig) JamState {
	if config.CheckIntervalMs <= 0 {
		st := self.state
		st.Jammed = false
		return st
	}
	cfg := config.Normalized()
	checkMs := uint32(cfg.CheckIntervalMs)
	self.hardJamTimeMs = uint32(cfg.HardJamTimeMs)
	self.softJamTimeMs = uint32(cfg.SoftJamTimeMs)

	if !self.pulseCountSeen {
		self.lastPulseCount = in.PulseCount
		self.pulseCountSeen = true
	} else if in.PulseCount != self.lastPulseCount {
		self.lastPulseCount = in.PulseCount
		self.lastPulseChangeMs = nowMs
		self.pulseChangeSeen = true
	}

	deficit := maths.MaxFloat(0, in.ExpectedMm-in.ActualMm)
	passRatio := 1.0
	if in.ExpectedMm > 0 {
		passRatio = maths.MaxFloat(0, in.ActualMm/in.ExpectedMm)
	}

	elapsedMs := checkMs
	if self.evaluated {
		elapsedMs = ElapsedMs(nowMs, self.lastEvalMs)
		if elapsedMs > checkMs {
			elapsedMs = checkMs
		}
	}
	self.lastEvalMs = nowMs
	self.evaluated = true

	if !in.Printing {
		self.setGrace(GraceIdle)
		self.clearEvidence()
		return self.publish(in, deficit, passRatio)
	}

	switch self.grace {
	case GraceIdle:
		self.clearEvidence()
	case GraceStartGrace:
		self.clearEvidence()
		sinceStart := ElapsedMs(nowMs, self.printStartMs)
		if sinceStart >= uint32(cfg.StartTimeoutMs) && sinceStart >= uint32(cfg.GraceTimeMs) && !in.TrackerGrace {
			self.setGrace(GraceActive)
		}
	case GraceResumeGrace:
		self.clearEvidence()
		// fresh pulses at a healthy ratio end the grace early; without
		// movement it times out after grace plus start timeout
		sinceResume := ElapsedMs(nowMs, self.resumeMs)
		flowing := in.PulseCount != self.resumePulseBaseline && passRatio >= cfg.RatioThreshold
		expired := sinceResume >= uint32(cfg.GraceTimeMs)+uint32(cfg.StartTimeoutMs)
		if (flowing || expired) && !in.TrackerGrace {
			self.setGrace(GraceActive)
		}
	}

	if self.grace == GraceActive {
		switch {
		case in.TrackerGrace:
			self.clearEvidence()
		case in.HasTelemetry:
			// telemetry loss freezes the accumulators rather than feeding them
			self.accumulate(in, deficit, passRatio, elapsedMs, nowMs, cfg)
		}
		if self.jammed(cfg.DetectionMode) {
			self.setGrace(GraceJammed)
			logger.Warnf("jam detected (%s): expected %.2fmm actual %.2fmm ratio %.2f deficit %.2fmm",
				self.reasonString(), in.ExpectedMm, in.ActualMm, passRatio, deficit)
		}
	}

	return self.publish(in, deficit, passRatio)
}

func (self *JamStateMachine) accumulate(in JamInput, deficit, passRatio float64, elapsedMs, nowMs uint32, cfg JamConfig) {
	checkMs := uint32(cfg.CheckIntervalMs)

	if cfg.DetectionMode.allowsHard() {
		hardCondition := in.ExpectedMm >= minHardWindowExpectedMm && passRatio < cfg.HardPassRatio
		pulseRecent := self.pulseChangeSeen &&
			ElapsedMs(nowMs, self.lastPulseChangeMs) <= checkMs+pulseRecencySlackMs
		if hardCondition {
			self.hardAccumulatedMs += elapsedMs
		} else if self.hardAccumulatedMs > 0 && pulseRecent {
			self.hardAccumulatedMs = 0
		}
		// the ceiling can drop when settings change mid-print
		if self.hardAccumulatedMs > self.hardJamTimeMs {
			self.hardAccumulatedMs = self.hardJamTimeMs
		}
		if self.hardAccumulatedMs >= self.hardJamTimeMs {
			// idle or travel at trigger time: veto instead of pausing
			if in.ExpectedMm >= minHardWindowExpectedMm {
				self.hardTriggered = true
			} else {
				self.hardAccumulatedMs = 0
			}
		}
	} else {
		self.hardAccumulatedMs = 0
		self.hardTriggered = false
	}

	if cfg.DetectionMode.allowsSoft() {
		if passRatio < cfg.RatioThreshold && deficit >= minSoftPerCheckMm {
			self.softAccumulatedMs += elapsedMs
			self.softDeficitMm += deficit
		} else {
			self.softAccumulatedMs = 0
			self.softDeficitMm = 0
		}
		if self.softAccumulatedMs > self.softJamTimeMs {
			self.softAccumulatedMs = self.softJamTimeMs
		}
		self.softTriggered = self.softAccumulatedMs >= self.softJamTimeMs && self.softDeficitMm >= minSoftDeficitMm
	} else {
		self.softAccumulatedMs = 0
		self.softDeficitMm = 0
		self.softTriggered = false
	}
}

func (self *JamStateMachine) jammed(mode DetectionMode) bool {
	return (mode.allowsHard() && self.hardTriggered) || (mode.allowsSoft() && self.softTriggered)
}

func (self *JamStateMachine) reasonString() string {
	if self.hardTriggered && self.softTriggered {
		return "hard+soft"
	}
	if self.hardTriggered {
		return "hard"
	}
	return "soft"
}

func (self *JamStateMachine) clearEvidence() {
	self.hardAccumulatedMs = 0
	self.softAccumulatedMs = 0
	self.softDeficitMm = 0
	self.hardTriggered = false
	self.softTriggered = false
}

func (self *JamStateMachine) setGrace(next GraceState) {
	if self.grace != next {
		logger.Debugf("jam detector %s -> %s", self.grace, next)
		self.grace = next
	}
}

func (self *JamStateMachine) publish(in JamInput, deficit, passRatio float64) JamState {
	self.state = JamState{
		Jammed:               self.grace == GraceJammed,
		HardJamTriggered:     self.hardTriggered,
		SoftJamTriggered:     self.softTriggered,
		HardJamPercent:       maths.Percent(float64(self.hardAccumulatedMs), float64(self.hardJamTimeMs)),
		SoftJamPercent:       maths.Percent(float64(self.softAccumulatedMs), float64(self.softJamTimeMs)),
		PassRatio:            maths.Clamp(passRatio, 0, 1),
		Deficit:              deficit,
		GraceState:           self.grace,
		GraceActive:          self.grace == GraceStartGrace || self.grace == GraceResumeGrace,
		ExpectedRateMmPerSec: in.ExpectedRateMmPerSec,
		ActualRateMmPerSec:   in.ActualRateMmPerSec,
		ExpectedMm:           in.ExpectedMm,
		ActualMm:             in.ActualMm,
		HardJamAccumulatedMs: self.hardAccumulatedMs,
		SoftJamAccumulatedMs: self.softAccumulatedMs,
		SoftJamDeficitMm:     self.softDeficitMm,
	}
	return self.state
}
