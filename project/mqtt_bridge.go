package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/harpua555/OpenFilamentSensor/common/logger"
)

const (
	mqttConnectTimeout   = 10 * time.Second
	mqttSubscribeTimeout = 5 * time.Second
	mqttPublishTimeout   = 5 * time.Second
)

var (
	ErrMQTTNotConnected = errors.New("mqtt: not connected")
	ErrMQTTTimeout      = errors.New("mqtt: timeout")
)

type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TelemetryTopic string
	StatusTopic    string
	QoS            byte
}

// MQTTBridge carries printer telemetry in and pause commands and sensor
// status out over one broker connection.
type MQTTBridge struct {
	cfg         MQTTConfig
	client      mqtt.Client
	onTelemetry func(Telemetry)
}

func NewMQTTBridge(cfg MQTTConfig, onTelemetry func(Telemetry)) *MQTTBridge {
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("ofs-%d", time.Now().Unix())
	}
	return &MQTTBridge{cfg: cfg, onTelemetry: onTelemetry}
}

func (self *MQTTBridge) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(self.cfg.Broker)
	opts.SetClientID(self.cfg.ClientID)
	if self.cfg.Username != "" {
		opts.SetUsername(self.cfg.Username)
		opts.SetPassword(self.cfg.Password)
	}
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = self.onConnect
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warnf("mqtt connection lost: %v", err)
	}
	opts.OnReconnecting = func(mqtt.Client, *mqtt.ClientOptions) {
		logger.Info("mqtt reconnecting")
	}

	self.client = mqtt.NewClient(opts)
	logger.Infof("mqtt connecting to %s as %s", self.cfg.Broker, self.cfg.ClientID)
	// with connect retry the client keeps trying after a timeout here
	return waitToken(ctx, self.client.Connect(), mqttConnectTimeout)
}

func (self *MQTTBridge) onConnect(client mqtt.Client) {
	if self.cfg.TelemetryTopic == "" {
		return
	}
	token := client.Subscribe(self.cfg.TelemetryTopic, self.cfg.QoS, self.handleMessage)
	if !token.WaitTimeout(mqttSubscribeTimeout) {
		logger.Warnf("mqtt subscribe timeout for %s", self.cfg.TelemetryTopic)
		return
	}
	if err := token.Error(); err != nil {
		logger.Errorf("mqtt subscribe %s: %v", self.cfg.TelemetryTopic, err)
		return
	}
	logger.Infof("mqtt subscribed to %s", self.cfg.TelemetryTopic)
}

func (self *MQTTBridge) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	t, err := parseTelemetry(msg.Payload())
	if err != nil {
		logger.Debugf("mqtt %s: %v", msg.Topic(), err)
		return
	}
	if self.onTelemetry != nil {
		self.onTelemetry(t)
	}
}

// PublishCommand sends a rendered printer command.
func (self *MQTTBridge) PublishCommand(ctx context.Context, topic string, payload []byte) error {
	if self.client == nil || !self.client.IsConnected() {
		return ErrMQTTNotConnected
	}
	return waitToken(ctx, self.client.Publish(topic, self.cfg.QoS, false, payload), mqttPublishTimeout)
}

// PublishStatus posts the sensor status as a retained message.
func (self *MQTTBridge) PublishStatus(ctx context.Context, st SensorStatus) error {
	if self.cfg.StatusTopic == "" {
		return nil
	}
	if self.client == nil || !self.client.IsConnected() {
		return ErrMQTTNotConnected
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return waitToken(ctx, self.client.Publish(self.cfg.StatusTopic, self.cfg.QoS, true, payload), mqttPublishTimeout)
}

func (self *MQTTBridge) Close() {
	if self.client != nil && self.client.IsConnected() {
		self.client.Disconnect(1000)
	}
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return ErrMQTTTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// telemetryEnvelope accepts both a bare sample and one wrapped in "Data",
// which is how relays that forward SDCP status frames publish it.
type telemetryEnvelope struct {
	Telemetry
	Data *Telemetry `json:"Data,omitempty"`
}

func parseTelemetry(payload []byte) (Telemetry, error) {
	var env telemetryEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Telemetry{}, fmt.Errorf("telemetry: %w", err)
	}
	if env.Data != nil {
		return *env.Data, nil
	}
	return env.Telemetry, nil
}
