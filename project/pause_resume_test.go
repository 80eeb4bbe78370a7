package project

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type recordingPublisher struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (r *recordingPublisher) PublishCommand(ctx context.Context, topic string, payload []byte) error {
	if r.err != nil {
		return r.err
	}
	r.topics = append(r.topics, topic)
	r.payloads = append(r.payloads, payload)
	return nil
}

func newTestCommander(t *testing.T, pub CommandPublisher) *PauseCommander {
	t.Helper()
	c, err := NewPauseCommander(pub, "", "", "MB01")
	if err != nil {
		t.Fatalf("NewPauseCommander: %v", err)
	}
	c.newRequestID = func() string { return "req-1" }
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

func TestPauseCommanderRendersSDCPRequest(t *testing.T) {
	pub := &recordingPublisher{}
	c := newTestCommander(t, pub)
	if err := c.Pause(context.Background(), PauseRequest{Reason: "hard"}); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if len(pub.topics) != 1 || pub.topics[0] != "sdcp/request/MB01" {
		t.Fatalf("unexpected topics %v", pub.topics)
	}
	var msg struct {
		Id   string
		Data struct {
			Cmd         int
			RequestID   string
			MainboardID string
			TimeStamp   int64
			From        int
		}
		Topic string
	}
	if err := json.Unmarshal(pub.payloads[0], &msg); err != nil {
		t.Fatalf("payload is not JSON: %v (%s)", err, pub.payloads[0])
	}
	if msg.Id != "req-1" || msg.Data.Cmd != 129 || msg.Data.MainboardID != "MB01" || msg.Data.TimeStamp != 1700000000 {
		t.Fatalf("unexpected payload %+v", msg)
	}
	if !c.CommandSent() || c.LastRequestID() != "req-1" {
		t.Fatalf("command should be latched")
	}
}

func TestPauseCommanderSendsOnceUntilCleared(t *testing.T) {
	pub := &recordingPublisher{}
	c := newTestCommander(t, pub)
	for i := 0; i < 3; i++ {
		if err := c.Pause(context.Background(), PauseRequest{Reason: "soft"}); err != nil {
			t.Fatalf("Pause: %v", err)
		}
	}
	if len(pub.payloads) != 1 {
		t.Fatalf("expected one command, got %d", len(pub.payloads))
	}
	c.ClearPause()
	if err := c.Pause(context.Background(), PauseRequest{Reason: "soft"}); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if len(pub.payloads) != 2 {
		t.Fatalf("expected a second command after ClearPause")
	}
}

func TestPauseCommanderPublishFailureDoesNotLatch(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("not connected")}
	c := newTestCommander(t, pub)
	if err := c.Pause(context.Background(), PauseRequest{Reason: "hard"}); err == nil {
		t.Fatalf("expected publish error")
	}
	if c.CommandSent() {
		t.Fatalf("failed publish must not latch")
	}
}

func TestPauseCommanderCustomTemplate(t *testing.T) {
	pub := &recordingPublisher{}
	c, err := NewPauseCommander(pub, "M25 ; {{ reason }} {{ deficit }}mm", "printer/{{ mainboard_id }}/gcode", "K1")
	if err != nil {
		t.Fatalf("NewPauseCommander: %v", err)
	}
	st := JamState{Deficit: 12.346}
	if err := c.Pause(context.Background(), PauseRequest{Reason: "runout", State: st}); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if pub.topics[0] != "printer/K1/gcode" || string(pub.payloads[0]) != "M25 ; runout 12.35mm" {
		t.Fatalf("unexpected render %q %q", pub.topics[0], pub.payloads[0])
	}
	if _, err := NewPauseCommander(pub, "{% if %}", "", ""); err == nil {
		t.Fatalf("expected template parse error")
	}
}
