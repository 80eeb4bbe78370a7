package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harpua555/OpenFilamentSensor/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	status project.SensorStatus
	err    error
	posted []string
}

func (f *fakeSource) Fetch(ctx context.Context) (project.SensorStatus, error) {
	return f.status, f.err
}

func (f *fakeSource) Post(ctx context.Context, path string) error {
	f.posted = append(f.posted, path)
	return f.err
}

func TestModelShowsJam(t *testing.T) {
	src := &fakeSource{status: project.SensorStatus{
		Stopped:        true,
		Printing:       true,
		HardJamPercent: 100,
		GraceStateName: "Jammed",
		MovementPulses: 12345,
		JamReason:      "hard",
	}}
	m := newModel(src, time.Second)
	msg := fetch(src)()
	next, _ := m.Update(msg)
	view := next.(model).View()
	assert.Contains(t, view, "JAMMED")
	assert.Contains(t, view, "12,345")
	assert.Contains(t, view, "hard")
}

func TestModelKeepsLastStatusOnError(t *testing.T) {
	src := &fakeSource{status: project.SensorStatus{Printing: true}}
	m := newModel(src, time.Second)
	next, _ := m.Update(fetch(src)())

	src.err = errors.New("refused")
	next, _ = next.Update(fetch(src)())
	view := next.(model).View()
	assert.Contains(t, view, "ok")
	assert.Contains(t, view, "stale: refused")
}

func TestModelUnreachable(t *testing.T) {
	src := &fakeSource{err: errors.New("refused")}
	next, _ := newModel(src, 0).Update(fetch(src)())
	assert.Contains(t, next.(model).View(), "unreachable")
}

func TestModelKeys(t *testing.T) {
	src := &fakeSource{}
	m := newModel(src, time.Second)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	require.NotNil(t, cmd)
	action := cmd().(actionMsg)
	assert.Equal(t, []string{"/recalibrate"}, src.posted)

	next, cmd := m.Update(action)
	assert.Equal(t, "recalibrate ok", next.(model).notice)
	assert.NotNil(t, cmd)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestBarClamps(t *testing.T) {
	assert.Equal(t, barWidth, strings.Count(bar(150, barWidth), "█"))
	assert.Equal(t, barWidth, strings.Count(bar(-5, barWidth), "░"))
}

func TestStatusClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sensor_status":
			_ = json.NewEncoder(w).Encode(project.SensorStatus{MovementPulses: 7})
		case "/recalibrate":
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newStatusClient(srv.URL + "/")
	st, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(7), st.MovementPulses)
	assert.NoError(t, c.Post(context.Background(), "/recalibrate"))
	assert.Error(t, c.Post(context.Background(), "/missing"))
}
