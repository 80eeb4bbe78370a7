package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent(id string, ts time.Time) JamEvent {
	return JamEvent{
		ID:             id,
		Timestamp:      ts,
		Reason:         "hard",
		ExpectedMm:     12.5,
		ActualMm:       0.4,
		DeficitMm:      12.1,
		PassRatio:      0.032,
		HardJamPercent: 100,
		SoftJamPercent: 40,
		MovementPulses: 321,
		PauseSent:      true,
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "history.db")
	store, err := NewStore("sqlite", dsn)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Init(ctx), "init must be repeatable")

	base := time.UnixMilli(1_700_000_000_000).UTC()
	require.NoError(t, store.SaveJam(ctx, sampleEvent("a", base)))
	require.NoError(t, store.SaveJam(ctx, sampleEvent("b", base.Add(time.Minute))))

	events, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].ID)
	assert.Equal(t, sampleEvent("a", base), events[1])

	events, err = store.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestNewStoreRejectsUnknownDriver(t *testing.T) {
	_, err := NewStore("mongo", "")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

type fakeSink struct {
	saved  []JamEvent
	err    error
	closed bool
}

func (f *fakeSink) SaveJam(ctx context.Context, ev JamEvent) error {
	f.saved = append(f.saved, ev)
	return f.err
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func TestFanoutDeliversToAllSinks(t *testing.T) {
	ok := &fakeSink{}
	broken := &fakeSink{err: errors.New("broker down")}
	fan := Fanout{broken, nil, ok}

	err := fan.SaveJam(context.Background(), sampleEvent("x", time.Now()))
	assert.EqualError(t, err, "broker down")
	assert.Len(t, ok.saved, 1)
	assert.Len(t, broken.saved, 1)

	require.NoError(t, fan.Close())
	assert.True(t, ok.closed)
	assert.True(t, broken.closed)
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaSinkEncodesEvent(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w}
	require.NoError(t, sink.SaveJam(context.Background(), sampleEvent("evt-1", time.UnixMilli(0).UTC())))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "evt-1", string(w.msgs[0].Key))
	assert.Contains(t, string(w.msgs[0].Value), `"reason":"hard"`)
	assert.Contains(t, string(w.msgs[0].Value), `"movementPulses":321`)
}

func TestNewKafkaSinkValidates(t *testing.T) {
	_, err := NewKafkaSink(nil, "jams")
	assert.Error(t, err)
	sink, err := NewKafkaSink([]string{"localhost:9092"}, "jams")
	require.NoError(t, err)
	assert.NoError(t, sink.Close())
}
