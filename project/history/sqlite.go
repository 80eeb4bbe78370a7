package history

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:ofs_history.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer keeps sqlite from returning SQLITE_BUSY under the eval loop
	db.SetMaxOpenConns(1)
	return &sqliteStore{baseStore{
		db: db,
		insertQuery: `INSERT INTO jam_events (id, ts_ms, reason, expected_mm, actual_mm, deficit_mm, pass_ratio,
			hard_percent, soft_percent, movement_pulses, pause_sent)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recentQuery: `SELECT id, ts_ms, reason, expected_mm, actual_mm, deficit_mm, pass_ratio,
			hard_percent, soft_percent, movement_pulses, pause_sent
			FROM jam_events ORDER BY ts_ms DESC, rowid DESC LIMIT ?`,
	}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.exec(ctx, []string{
		`CREATE TABLE IF NOT EXISTS jam_events (
			id TEXT PRIMARY KEY,
			ts_ms INTEGER NOT NULL,
			reason TEXT NOT NULL,
			expected_mm REAL NOT NULL,
			actual_mm REAL NOT NULL,
			deficit_mm REAL NOT NULL,
			pass_ratio REAL NOT NULL,
			hard_percent REAL NOT NULL,
			soft_percent REAL NOT NULL,
			movement_pulses INTEGER NOT NULL,
			pause_sent BOOLEAN NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jam_events_ts ON jam_events(ts_ms)`,
	})
}
