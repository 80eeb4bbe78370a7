package main

import (
	"context"
	"errors"
	"time"

	"github.com/harpua555/OpenFilamentSensor/common/config"
	"github.com/harpua555/OpenFilamentSensor/common/logger"
	"github.com/harpua555/OpenFilamentSensor/common/utils/sys"
	"github.com/harpua555/OpenFilamentSensor/project"
	"github.com/harpua555/OpenFilamentSensor/project/history"
	"golang.org/x/sync/errgroup"
)

const historyWriteTimeout = 5 * time.Second

// logPublisher stands in for the broker when MQTT is off, so pause
// decisions still show up in the log.
type logPublisher struct{}

func (logPublisher) PublishCommand(ctx context.Context, topic string, payload []byte) error {
	logger.Warnf("pause command (no broker) %s: %s", topic, payload)
	return nil
}

type daemon struct {
	settings  *config.Settings
	monitor   *project.FilamentMonitor
	commander *project.PauseCommander
	bridge    *project.MQTTBridge
	webhooks  *project.WebHooks
	store     history.Store
	sinks     history.Fanout
}

func newDaemon(ctx context.Context, settings *config.Settings) (*daemon, error) {
	self := &daemon{settings: settings}

	var publisher project.CommandPublisher = logPublisher{}
	if settings.MQTT.Enabled {
		// the bridge needs the monitor for telemetry, which is set below
		self.bridge = project.NewMQTTBridge(settings.MQTTConfig(), func(t project.Telemetry) {
			self.monitor.OnTelemetry(t)
		})
		publisher = self.bridge
	}
	commander, err := project.NewPauseCommander(publisher, settings.PauseTemplate, settings.PauseTopic, settings.MainboardID)
	if err != nil {
		return nil, err
	}
	self.commander = commander
	self.monitor = project.NewFilamentMonitor(project.NewMonotonicClock(), settings.MonitorConfig(), commander)

	if settings.History.Driver != "none" {
		store, err := history.NewStore(settings.History.Driver, settings.History.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.Init(ctx); err != nil {
			store.Close()
			return nil, err
		}
		self.store = store
		self.sinks = append(self.sinks, store)
	}
	if len(settings.History.KafkaBrokers) > 0 {
		sink, err := history.NewKafkaSink(settings.History.KafkaBrokers, settings.History.KafkaTopic)
		if err != nil {
			self.Close()
			return nil, err
		}
		self.sinks = append(self.sinks, sink)
	}

	var reader project.HistoryReader
	if self.store != nil {
		reader = self.store
	}
	refresh := time.Duration(settings.UIRefreshIntervalMs) * time.Millisecond
	self.webhooks = project.NewWebHooks(self.monitor, reader, refresh)
	return self, nil
}

// Run blocks until ctx is cancelled or a worker fails.
func (self *daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(sys.Guard("evaluate", func() error { return self.evaluateLoop(ctx) }))
	g.Go(sys.Guard("history", func() error { return self.historyLoop(ctx) }))
	g.Go(sys.Guard("webhooks", func() error { return self.webhooks.Serve(ctx, self.settings.HTTPAddr) }))
	if self.bridge != nil {
		g.Go(sys.Guard("mqtt", func() error { return self.mqttLoop(ctx) }))
	}
	self.startSensors(ctx, g)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (self *daemon) startSensors(ctx context.Context, g *errgroup.Group) {
	sensor := self.settings.Sensor
	switch sensor.Source {
	case "gpio":
		src := project.NewGPIOPulseSource(sensor.PulsePin, self.monitor)
		g.Go(sys.Guard("gpio pulses", func() error { return src.Run(ctx) }))
	case "serial":
		src := project.NewSerialPulseSource(sensor.SerialPort, sensor.BaudRate, project.NewMonotonicClock(), self.monitor, self.monitor.OnRunout)
		g.Go(sys.Guard("serial pulses", func() error { return src.Run(ctx) }))
	default:
		logger.Warn("no pulse source configured, actual movement will read zero")
	}
	if sensor.RunoutPin >= 0 {
		src := project.NewGPIORunoutSource(sensor.RunoutPin, sensor.RunoutActiveHi, self.monitor.OnRunout)
		g.Go(sys.Guard("runout switch", func() error { return src.Run(ctx) }))
	}
}

func (self *daemon) evaluateLoop(ctx context.Context) error {
	interval := time.Duration(self.settings.CheckIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			self.monitor.Evaluate(ctx)
		}
	}
}

func (self *daemon) historyLoop(ctx context.Context) error {
	events := self.monitor.Events()
	for {
		select {
		case <-ctx.Done():
			// flush what is already queued, the stores outlive ctx
			self.saveEvents(context.Background(), events.Drain())
			return ctx.Err()
		case <-events.Notify():
			self.saveEvents(ctx, events.Drain())
		}
	}
}

func (self *daemon) saveEvents(ctx context.Context, events []history.JamEvent) {
	if len(self.sinks) == 0 {
		return
	}
	for _, ev := range events {
		writeCtx, cancel := context.WithTimeout(ctx, historyWriteTimeout)
		if err := self.sinks.SaveJam(writeCtx, ev); err != nil {
			logger.Errorf("save jam event %s: %v", ev.ID, err)
		}
		cancel()
	}
}

func (self *daemon) mqttLoop(ctx context.Context) error {
	if err := self.bridge.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warnf("mqtt not connected yet: %v", err)
	}
	defer self.bridge.Close()
	ticker := time.NewTicker(time.Duration(self.settings.UIRefreshIntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := self.bridge.PublishStatus(ctx, self.monitor.Status()); err != nil && !errors.Is(err, project.ErrMQTTNotConnected) {
				logger.Debugf("publish status: %v", err)
			}
		}
	}
}

func (self *daemon) Close() {
	if len(self.sinks) > 0 {
		if err := self.sinks.Close(); err != nil {
			logger.Warnf("close history: %v", err)
		}
	}
}
