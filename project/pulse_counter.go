package project

import "github.com/harpua555/OpenFilamentSensor/common/logger"

// A report further ahead than this is a corrupted line or a restarted
// board, never real movement between two reports.
const maxPulsesPerUpdate = 10000

// PulseSink receives counted movement pulses.
type PulseSink interface {
	AddPulses(n uint32)
}

// PulseCounter turns a free-running 32-bit hardware count into deltas.
type PulseCounter struct {
	last_raw    uint32
	total       int64
	last_time   uint32
	initialized bool
	freq        float64
}

func NewPulseCounter() *PulseCounter {
	return &PulseCounter{}
}

// Update takes the raw count reported at nowMs and returns the number of
// new pulses since the previous report. The first report only baselines,
// and so does any report that cannot be real movement: a count that went
// backwards without crossing the 32-bit boundary, or one that jumped by
// more than maxPulsesPerUpdate.
func (self *PulseCounter) Update(raw uint32, nowMs uint32) uint32 {
	if !self.initialized {
		self.initialized = true
		self.last_raw = raw
		self.total = int64(raw)
		self.last_time = nowMs
		return 0
	}
	// uint32 subtraction handles the counter overflow
	deltaCount := raw - self.last_raw
	if deltaCount > maxPulsesPerUpdate {
		if raw < self.last_raw {
			logger.Warnf("pulse counter went back from %d to %d, restarting count", self.last_raw, raw)
		} else {
			logger.Warnf("pulse counter jumped from %d to %d, ignoring", self.last_raw, raw)
		}
		self.last_raw = raw
		self.last_time = nowMs
		self.freq = 0
		return 0
	}
	self.last_raw = raw
	self.total += int64(deltaCount)
	if deltaMs := ElapsedMs(nowMs, self.last_time); deltaMs > 0 {
		self.freq = float64(deltaCount) * 1000 / float64(deltaMs)
		self.last_time = nowMs
	}
	return deltaCount
}

func (self *PulseCounter) Count() int64 {
	return self.total
}

// Get_frequency is pulses per second over the last two reports.
func (self *PulseCounter) Get_frequency() float64 {
	return self.freq
}

func (self *PulseCounter) Reset() {
	*self = PulseCounter{}
}
