package project

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flosch/pongo2/v5"
	"github.com/harpua555/OpenFilamentSensor/common/logger"
	uuid "github.com/satori/go.uuid"
)

// SDCP pause request (Cmd 129) as understood by Elegoo Centauri firmware.
const (
	DefaultPauseTemplate = `{"Id":"{{ request_id }}","Data":{"Cmd":129,"Data":{},"RequestID":"{{ request_id }}","MainboardID":"{{ mainboard_id }}","TimeStamp":{{ timestamp }},"From":0},"Topic":"sdcp/request/{{ mainboard_id }}"}`
	DefaultPauseTopic    = `sdcp/request/{{ mainboard_id }}`
)

// PauseRequest describes why the printer should stop.
type PauseRequest struct {
	Reason string
	State  JamState
}

// PrinterControl is how the monitor stops the printer.
type PrinterControl interface {
	Pause(ctx context.Context, req PauseRequest) error
	ClearPause()
}

// CommandPublisher delivers a rendered command to the printer.
type CommandPublisher interface {
	PublishCommand(ctx context.Context, topic string, payload []byte) error
}

// PauseCommander renders pause commands from templates and sends each one
// at most once until ClearPause.
type PauseCommander struct {
	lock        sync.Mutex
	publisher   CommandPublisher
	payload     *pongo2.Template
	topic       *pongo2.Template
	mainboardID string

	Pause_command_sent bool
	lastRequestID      string

	newRequestID func() string
	now          func() time.Time
}

func NewPauseCommander(publisher CommandPublisher, payloadTemplate, topicTemplate, mainboardID string) (*PauseCommander, error) {
	if payloadTemplate == "" {
		payloadTemplate = DefaultPauseTemplate
	}
	if topicTemplate == "" {
		topicTemplate = DefaultPauseTopic
	}
	payload, err := pongo2.FromString(payloadTemplate)
	if err != nil {
		return nil, fmt.Errorf("pause template: %w", err)
	}
	topic, err := pongo2.FromString(topicTemplate)
	if err != nil {
		return nil, fmt.Errorf("pause topic template: %w", err)
	}
	return &PauseCommander{
		publisher:   publisher,
		payload:     payload,
		topic:       topic,
		mainboardID: mainboardID,
		newRequestID: func() string {
			return uuid.NewV4().String()
		},
		now: time.Now,
	}, nil
}

func (self *PauseCommander) render(req PauseRequest, requestID string) (string, []byte, error) {
	ctx := pongo2.Context{
		"request_id":   requestID,
		"mainboard_id": self.mainboardID,
		"timestamp":    self.now().Unix(),
		"reason":       req.Reason,
		"deficit":      fmt.Sprintf("%.2f", req.State.Deficit),
		"pass_ratio":   fmt.Sprintf("%.3f", req.State.PassRatio),
	}
	topic, err := self.topic.Execute(ctx)
	if err != nil {
		return "", nil, err
	}
	payload, err := self.payload.Execute(ctx)
	if err != nil {
		return "", nil, err
	}
	return topic, []byte(payload), nil
}

// Pause sends the pause command unless one is already outstanding.
func (self *PauseCommander) Pause(ctx context.Context, req PauseRequest) error {
	self.lock.Lock()
	defer self.lock.Unlock()
	if self.Pause_command_sent {
		return nil
	}
	if self.publisher == nil {
		return errors.New("no command publisher configured")
	}
	requestID := self.newRequestID()
	topic, payload, err := self.render(req, requestID)
	if err != nil {
		return fmt.Errorf("render pause command: %w", err)
	}
	if err := self.publisher.PublishCommand(ctx, topic, payload); err != nil {
		return fmt.Errorf("publish pause command: %w", err)
	}
	self.Pause_command_sent = true
	self.lastRequestID = requestID
	logger.Infof("pause command %s sent (%s)", requestID, req.Reason)
	return nil
}

func (self *PauseCommander) ClearPause() {
	self.lock.Lock()
	defer self.lock.Unlock()
	self.Pause_command_sent = false
}

func (self *PauseCommander) CommandSent() bool {
	self.lock.Lock()
	defer self.lock.Unlock()
	return self.Pause_command_sent
}

func (self *PauseCommander) LastRequestID() string {
	self.lock.Lock()
	defer self.lock.Unlock()
	return self.lastRequestID
}
