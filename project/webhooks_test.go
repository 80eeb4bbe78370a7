package project

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harpua555/OpenFilamentSensor/project/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMonitor struct {
	status       SensorStatus
	recalibrated atomic.Int32
	cleared      atomic.Int32
}

func (s *stubMonitor) Status() SensorStatus { return s.status }
func (s *stubMonitor) Recalibrate()         { s.recalibrated.Add(1) }
func (s *stubMonitor) ClearPauseRequest()   { s.cleared.Add(1) }

type stubHistory struct {
	events []history.JamEvent
	err    error
	limit  int
}

func (s *stubHistory) Recent(ctx context.Context, limit int) ([]history.JamEvent, error) {
	s.limit = limit
	return s.events, s.err
}

func newTestWebHooks(t *testing.T) (*WebHooks, *stubMonitor, *stubHistory, *httptest.Server) {
	t.Helper()
	mon := &stubMonitor{status: SensorStatus{Stopped: true, GraceState: int(GraceJammed), MovementPulses: 42}}
	hist := &stubHistory{events: []history.JamEvent{{ID: "a", Reason: "soft"}}}
	wh := NewWebHooks(mon, hist, 50*time.Millisecond)
	srv := httptest.NewServer(wh.Handler())
	t.Cleanup(srv.Close)
	return wh, mon, hist, srv
}

func TestSensorStatusEndpoint(t *testing.T) {
	_, _, _, srv := newTestWebHooks(t)
	resp, err := http.Get(srv.URL + "/sensor_status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var st SensorStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.True(t, st.Stopped)
	assert.Equal(t, uint32(42), st.MovementPulses)
}

func TestHistoryEndpoint(t *testing.T) {
	_, _, hist, srv := newTestWebHooks(t)
	resp, err := http.Get(srv.URL + "/history?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	var events []history.JamEvent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	assert.Equal(t, 5, hist.limit)
	require.Len(t, events, 1)
	assert.Equal(t, "soft", events[0].Reason)

	hist.err = errors.New("db closed")
	resp2, err := http.Get(srv.URL + "/history")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp2.StatusCode)
	assert.Equal(t, defaultHistoryN, hist.limit)
}

func TestControlEndpointsRequirePost(t *testing.T) {
	_, mon, _, srv := newTestWebHooks(t)
	resp, err := http.Get(srv.URL + "/recalibrate")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, int32(0), mon.recalibrated.Load())

	resp, err = http.Post(srv.URL+"/recalibrate", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), mon.recalibrated.Load())

	resp, err = http.Post(srv.URL+"/pause_request/clear", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(1), mon.cleared.Load())
}

func TestWebSocketPushesStatus(t *testing.T) {
	wh, mon, _, srv := newTestWebHooks(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first SensorStatus
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, int(GraceJammed), first.GraceState)

	mon.status.MovementPulses = 43
	require.Eventually(t, func() bool { return wh.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	wh.Broadcast()
	var second SensorStatus
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, uint32(43), second.MovementPulses)
}
