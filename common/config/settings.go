package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/harpua555/OpenFilamentSensor/common/file"
	"github.com/harpua555/OpenFilamentSensor/common/utils/LiteralEval"
	"github.com/harpua555/OpenFilamentSensor/project"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSettingsFile = "user_settings.json"

	minUIRefreshMs   = 100
	maxUIRefreshMs   = 60000
	defaultHTTPAddr  = ":8080"
	defaultBaudRate  = 115200
	defaultHistoryDB = "sqlite"
)

var ErrUnknownKey = errors.New("unknown setting")

type MQTTSettings struct {
	Enabled        bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Broker         string `json:"broker" yaml:"broker" toml:"broker"`
	ClientID       string `json:"client_id" yaml:"client_id" toml:"client_id"`
	Username       string `json:"username" yaml:"username" toml:"username"`
	Password       string `json:"password" yaml:"password" toml:"password"`
	TelemetryTopic string `json:"telemetry_topic" yaml:"telemetry_topic" toml:"telemetry_topic"`
	StatusTopic    string `json:"status_topic" yaml:"status_topic" toml:"status_topic"`
	QoS            int    `json:"qos" yaml:"qos" toml:"qos"`
}

type HistorySettings struct {
	Driver       string   `json:"driver" yaml:"driver" toml:"driver"`
	DSN          string   `json:"dsn" yaml:"dsn" toml:"dsn"`
	KafkaBrokers []string `json:"kafka_brokers" yaml:"kafka_brokers" toml:"kafka_brokers"`
	KafkaTopic   string   `json:"kafka_topic" yaml:"kafka_topic" toml:"kafka_topic"`
}

type SensorSettings struct {
	// Source is "gpio", "serial" or "none".
	Source         string `json:"source" yaml:"source" toml:"source"`
	PulsePin       int    `json:"pulse_pin" yaml:"pulse_pin" toml:"pulse_pin"`
	RunoutPin      int    `json:"runout_pin" yaml:"runout_pin" toml:"runout_pin"`
	RunoutActiveHi bool   `json:"runout_active_high" yaml:"runout_active_high" toml:"runout_active_high"`
	SerialPort     string `json:"serial_port" yaml:"serial_port" toml:"serial_port"`
	BaudRate       int    `json:"baud_rate" yaml:"baud_rate" toml:"baud_rate"`
}

// Settings mirrors user_settings.json. Unknown keys in the file are ignored.
type Settings struct {
	PauseOnRunout           bool    `json:"pause_on_runout" yaml:"pause_on_runout" toml:"pause_on_runout"`
	StartPrintTimeout       int     `json:"start_print_timeout" yaml:"start_print_timeout" toml:"start_print_timeout"`
	Enabled                 bool    `json:"enabled" yaml:"enabled" toml:"enabled"`
	DetectionGracePeriodMs  int     `json:"detection_grace_period_ms" yaml:"detection_grace_period_ms" toml:"detection_grace_period_ms"`
	DetectionRatioThreshold float64 `json:"detection_ratio_threshold" yaml:"detection_ratio_threshold" toml:"detection_ratio_threshold"`
	DetectionHardJamMm      float64 `json:"detection_hard_jam_mm" yaml:"detection_hard_jam_mm" toml:"detection_hard_jam_mm"`
	DetectionSoftJamTimeMs  int     `json:"detection_soft_jam_time_ms" yaml:"detection_soft_jam_time_ms" toml:"detection_soft_jam_time_ms"`
	DetectionHardJamTimeMs  int     `json:"detection_hard_jam_time_ms" yaml:"detection_hard_jam_time_ms" toml:"detection_hard_jam_time_ms"`
	DetectionHardPassRatio  float64 `json:"detection_hard_pass_ratio" yaml:"detection_hard_pass_ratio" toml:"detection_hard_pass_ratio"`
	DetectionMode           int     `json:"detection_mode" yaml:"detection_mode" toml:"detection_mode"`
	CheckIntervalMs         int     `json:"check_interval_ms" yaml:"check_interval_ms" toml:"check_interval_ms"`
	SdcpLossBehavior        int     `json:"sdcp_loss_behavior" yaml:"sdcp_loss_behavior" toml:"sdcp_loss_behavior"`
	FlowTelemetryStaleMs    int     `json:"flow_telemetry_stale_ms" yaml:"flow_telemetry_stale_ms" toml:"flow_telemetry_stale_ms"`
	UIRefreshIntervalMs     int     `json:"ui_refresh_interval_ms" yaml:"ui_refresh_interval_ms" toml:"ui_refresh_interval_ms"`
	LogLevel                int     `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFile                 string  `json:"log_file" yaml:"log_file" toml:"log_file"`
	SuppressPauseCommands   bool    `json:"suppress_pause_commands" yaml:"suppress_pause_commands" toml:"suppress_pause_commands"`
	MovementMmPerPulse      float64 `json:"movement_mm_per_pulse" yaml:"movement_mm_per_pulse" toml:"movement_mm_per_pulse"`

	MainboardID   string `json:"mainboard_id" yaml:"mainboard_id" toml:"mainboard_id"`
	PauseTemplate string `json:"pause_command_template" yaml:"pause_command_template" toml:"pause_command_template"`
	PauseTopic    string `json:"pause_command_topic" yaml:"pause_command_topic" toml:"pause_command_topic"`
	HTTPAddr      string `json:"http_addr" yaml:"http_addr" toml:"http_addr"`

	MQTT    MQTTSettings    `json:"mqtt" yaml:"mqtt" toml:"mqtt"`
	History HistorySettings `json:"history" yaml:"history" toml:"history"`
	Sensor  SensorSettings  `json:"sensor" yaml:"sensor" toml:"sensor"`
}

func DefaultSettings() *Settings {
	return &Settings{
		PauseOnRunout:           true,
		StartPrintTimeout:       project.DefaultStartTimeoutMs,
		Enabled:                 true,
		DetectionGracePeriodMs:  project.DefaultGraceTimeMs,
		DetectionRatioThreshold: project.DefaultRatioThreshold,
		DetectionHardJamMm:      5,
		DetectionSoftJamTimeMs:  project.DefaultSoftJamTimeMs,
		DetectionHardJamTimeMs:  project.DefaultHardJamTimeMs,
		DetectionHardPassRatio:  project.DefaultHardPassRatio,
		DetectionMode:           int(project.DetectionBoth),
		CheckIntervalMs:         project.DefaultCheckIntervalMs,
		SdcpLossBehavior:        int(project.LossIgnore),
		FlowTelemetryStaleMs:    project.DefaultTelemetryStaleMs,
		UIRefreshIntervalMs:     1000,
		MovementMmPerPulse:      project.DefaultMmPerPulse,
		PauseTemplate:           project.DefaultPauseTemplate,
		PauseTopic:              project.DefaultPauseTopic,
		HTTPAddr:                defaultHTTPAddr,
		MQTT: MQTTSettings{
			TelemetryTopic: "ofs/printer/telemetry",
			StatusTopic:    "ofs/sensor/status",
		},
		History: HistorySettings{
			Driver:     defaultHistoryDB,
			KafkaTopic: "ofs.jams",
		},
		Sensor: SensorSettings{
			Source:    "none",
			PulsePin:  -1,
			RunoutPin: -1,
			BaudRate:  defaultBaudRate,
		},
	}
}

// Load reads path, picking the decoder from the extension. A missing file
// yields the defaults and os.ErrNotExist.
func Load(path string) (*Settings, error) {
	s := DefaultSettings()
	path = file.ExpandPath(path)
	content, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, s)
	case ".toml":
		err = toml.Unmarshal(content, s)
	default:
		err = json.Unmarshal(content, s)
	}
	if err != nil {
		return DefaultSettings(), fmt.Errorf("parse %s: %w", path, err)
	}
	s.Normalize()
	return s, nil
}

// Save writes the settings in the format implied by the extension.
func (self *Settings) Save(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(self)
	case ".toml":
		var sb strings.Builder
		err = toml.NewEncoder(&sb).Encode(self)
		data = []byte(sb.String())
	default:
		data, err = json.MarshalIndent(self, "", "\t")
	}
	if err != nil {
		return err
	}
	return file.WriteFileWithSync(file.ExpandPath(path), data)
}

// Normalize clamps values the detector would clamp anyway, so the saved
// file reflects what actually runs.
func (self *Settings) Normalize() {
	jc := self.JamConfig()
	self.DetectionRatioThreshold = jc.RatioThreshold
	self.DetectionHardPassRatio = jc.HardPassRatio
	self.DetectionSoftJamTimeMs = jc.SoftJamTimeMs
	self.DetectionHardJamTimeMs = jc.HardJamTimeMs
	self.DetectionGracePeriodMs = jc.GraceTimeMs
	self.StartPrintTimeout = jc.StartTimeoutMs
	self.DetectionMode = int(jc.DetectionMode)

	if self.CheckIntervalMs <= 0 {
		self.CheckIntervalMs = project.DefaultCheckIntervalMs
	}
	if self.MovementMmPerPulse <= 0 {
		self.MovementMmPerPulse = project.DefaultMmPerPulse
	}
	if self.FlowTelemetryStaleMs < 250 {
		self.FlowTelemetryStaleMs = 250
	}
	if self.UIRefreshIntervalMs < minUIRefreshMs {
		self.UIRefreshIntervalMs = minUIRefreshMs
	}
	if self.UIRefreshIntervalMs > maxUIRefreshMs {
		self.UIRefreshIntervalMs = maxUIRefreshMs
	}
	if self.SdcpLossBehavior != int(project.LossPause) {
		self.SdcpLossBehavior = int(project.LossIgnore)
	}
	if self.LogLevel < 0 || self.LogLevel > 2 {
		self.LogLevel = 0
	}
	if self.Sensor.BaudRate <= 0 {
		self.Sensor.BaudRate = defaultBaudRate
	}
	if self.HTTPAddr == "" {
		self.HTTPAddr = defaultHTTPAddr
	}
	self.LogFile = file.ExpandPath(self.LogFile)
	if self.History.Driver == "" {
		self.History.Driver = defaultHistoryDB
	}
}

// Validate reports every setting that cannot be clamped into shape.
func (self *Settings) Validate() error {
	var err error
	if self.MQTT.Enabled && self.MQTT.Broker == "" {
		err = multierr.Append(err, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	if self.MQTT.QoS < 0 || self.MQTT.QoS > 2 {
		err = multierr.Append(err, fmt.Errorf("mqtt.qos %d out of range", self.MQTT.QoS))
	}
	switch self.History.Driver {
	case "sqlite", "postgres", "none":
	default:
		err = multierr.Append(err, fmt.Errorf("history.driver %q not supported", self.History.Driver))
	}
	if len(self.History.KafkaBrokers) > 0 && self.History.KafkaTopic == "" {
		err = multierr.Append(err, errors.New("history.kafka_topic is required with kafka_brokers"))
	}
	switch self.Sensor.Source {
	case "gpio":
		if self.Sensor.PulsePin < 0 {
			err = multierr.Append(err, errors.New("sensor.pulse_pin is required for gpio source"))
		}
	case "serial":
		if self.Sensor.SerialPort == "" {
			err = multierr.Append(err, errors.New("sensor.serial_port is required for serial source"))
		}
	case "none", "":
	default:
		err = multierr.Append(err, fmt.Errorf("sensor.source %q not supported", self.Sensor.Source))
	}
	return err
}

// Apply sets one key from a command line override such as
// "detection_mode=1" or "mqtt.broker=tcp://printer:1883".
func (self *Settings) Apply(assignment string) error {
	key, raw, ok := strings.Cut(assignment, "=")
	if !ok {
		return fmt.Errorf("override %q: expected key=value", assignment)
	}
	key = strings.TrimSpace(key)
	value, err := LiteralEval.LiteralEval(raw)
	if err != nil {
		return fmt.Errorf("override %s: %w", key, err)
	}

	data, err := json.Marshal(self)
	if err != nil {
		return err
	}
	var tree map[string]interface{}
	if err = json.Unmarshal(data, &tree); err != nil {
		return err
	}
	node := tree
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]interface{})
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
		node = child
	}
	leaf := parts[len(parts)-1]
	if _, ok := node[leaf]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if _, isStr := node[leaf].(string); isStr {
		if _, ok := value.(string); !ok {
			value = strings.TrimSpace(raw)
		}
	}
	node[leaf] = value

	if data, err = json.Marshal(tree); err != nil {
		return err
	}
	updated := &Settings{}
	if err = json.Unmarshal(data, updated); err != nil {
		return fmt.Errorf("override %s: %w", key, err)
	}
	updated.Normalize()
	*self = *updated
	return nil
}

func (self *Settings) JamConfig() project.JamConfig {
	return project.JamConfig{
		RatioThreshold:  self.DetectionRatioThreshold,
		HardJamMm:       self.DetectionHardJamMm,
		SoftJamTimeMs:   self.DetectionSoftJamTimeMs,
		HardJamTimeMs:   self.DetectionHardJamTimeMs,
		GraceTimeMs:     self.DetectionGracePeriodMs,
		StartTimeoutMs:  self.StartPrintTimeout,
		DetectionMode:   project.DetectionMode(self.DetectionMode),
		CheckIntervalMs: self.CheckIntervalMs,
		HardPassRatio:   self.DetectionHardPassRatio,
	}.Normalized()
}

func (self *Settings) MonitorConfig() project.MonitorConfig {
	cfg := project.DefaultMonitorConfig()
	cfg.Jam = self.JamConfig()
	cfg.MmPerPulse = self.MovementMmPerPulse
	cfg.Enabled = self.Enabled
	cfg.PauseOnRunout = self.PauseOnRunout
	cfg.SuppressPause = self.SuppressPauseCommands
	cfg.TelemetryStaleMs = uint32(self.FlowTelemetryStaleMs)
	cfg.LossBehavior = project.LossBehavior(self.SdcpLossBehavior)
	return cfg
}

func (self *Settings) MQTTConfig() project.MQTTConfig {
	return project.MQTTConfig{
		Broker:         self.MQTT.Broker,
		ClientID:       self.MQTT.ClientID,
		Username:       self.MQTT.Username,
		Password:       self.MQTT.Password,
		TelemetryTopic: self.MQTT.TelemetryTopic,
		StatusTopic:    self.MQTT.StatusTopic,
		QoS:            byte(self.MQTT.QoS),
	}
}
