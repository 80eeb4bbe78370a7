package project

// SensorStatus is the JSON shape served to the web UI, the terminal
// display and Home Assistant. Existing consumers depend on the field names.
type SensorStatus struct {
	Stopped              bool    `json:"stopped"`
	HardJamPercent       float64 `json:"hardJamPercent"`
	SoftJamPercent       float64 `json:"softJamPercent"`
	GraceActive          bool    `json:"graceActive"`
	GraceState           int     `json:"graceState"`
	GraceStateName       string  `json:"graceStateName"`
	ExpectedFilament     float64 `json:"expectedFilament"`
	ActualFilament       float64 `json:"actualFilament"`
	ExpectedDelta        float64 `json:"expectedDelta"`
	CurrentDeficitMm     float64 `json:"currentDeficitMm"`
	DeficitRatio         float64 `json:"deficitRatio"`
	PassRatio            float64 `json:"passRatio"`
	RatioThreshold       float64 `json:"ratioThreshold"`
	ExpectedRateMmPerSec float64 `json:"expectedRateMmPerSec"`
	ActualRateMmPerSec   float64 `json:"actualRateMmPerSec"`
	MovementPulses       uint32  `json:"movementPulses"`
	FlowRatio            float64 `json:"flowRatio"`
	JamReason            string  `json:"jamReason,omitempty"`

	FilamentRunout  bool   `json:"filamentRunout"`
	Printing        bool   `json:"printing"`
	Paused          bool   `json:"paused"`
	PauseRequested  bool   `json:"pauseRequested"`
	TelemetryActive bool   `json:"telemetryActive"`
	Enabled         bool   `json:"enabled"`
	UptimeMs        uint32 `json:"uptimeMs"`
}
