package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// JamEvent is one pause-worthy episode as reported to history sinks.
type JamEvent struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Reason         string    `json:"reason"`
	ExpectedMm     float64   `json:"expectedMm"`
	ActualMm       float64   `json:"actualMm"`
	DeficitMm      float64   `json:"deficitMm"`
	PassRatio      float64   `json:"passRatio"`
	HardJamPercent float64   `json:"hardJamPercent"`
	SoftJamPercent float64   `json:"softJamPercent"`
	MovementPulses uint32    `json:"movementPulses"`
	PauseSent      bool      `json:"pauseSent"`
}

// Sink receives jam events.
type Sink interface {
	SaveJam(ctx context.Context, ev JamEvent) error
	Close() error
}

// Store is a Sink that can also be queried.
type Store interface {
	Sink
	Init(ctx context.Context) error
	Recent(ctx context.Context, limit int) ([]JamEvent, error)
}

var ErrUnsupportedDriver = errors.New("unsupported history driver")

func NewStore(driver, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		return NewSQLite(dsn)
	case "postgres", "postgresql":
		return NewPostgres(dsn)
	default:
		return nil, ErrUnsupportedDriver
	}
}

type baseStore struct {
	db          *sql.DB
	insertQuery string
	recentQuery string
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) exec(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (b *baseStore) SaveJam(ctx context.Context, ev JamEvent) error {
	if b.db == nil {
		return nil
	}
	_, err := b.db.ExecContext(ctx, b.insertQuery,
		ev.ID,
		ev.Timestamp.UTC().UnixMilli(),
		ev.Reason,
		ev.ExpectedMm,
		ev.ActualMm,
		ev.DeficitMm,
		ev.PassRatio,
		ev.HardJamPercent,
		ev.SoftJamPercent,
		int64(ev.MovementPulses),
		ev.PauseSent,
	)
	return err
}

func (b *baseStore) Recent(ctx context.Context, limit int) ([]JamEvent, error) {
	if b.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := b.db.QueryContext(ctx, b.recentQuery, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []JamEvent
	for rows.Next() {
		var (
			ev     JamEvent
			tsMs   int64
			pulses int64
		)
		if err := rows.Scan(&ev.ID, &tsMs, &ev.Reason, &ev.ExpectedMm, &ev.ActualMm, &ev.DeficitMm,
			&ev.PassRatio, &ev.HardJamPercent, &ev.SoftJamPercent, &pulses, &ev.PauseSent); err != nil {
			return nil, err
		}
		ev.Timestamp = time.UnixMilli(tsMs).UTC()
		ev.MovementPulses = uint32(pulses)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func encodeJSON(value any) []byte {
	data, _ := json.Marshal(value)
	return data
}
