package history

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/ofs?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{
		db: db,
		insertQuery: `INSERT INTO jam_events (id, ts_ms, reason, expected_mm, actual_mm, deficit_mm, pass_ratio,
			hard_percent, soft_percent, movement_pulses, pause_sent)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		recentQuery: `SELECT id, ts_ms, reason, expected_mm, actual_mm, deficit_mm, pass_ratio,
			hard_percent, soft_percent, movement_pulses, pause_sent
			FROM jam_events ORDER BY ts_ms DESC LIMIT $1`,
	}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.exec(ctx, []string{
		`CREATE TABLE IF NOT EXISTS jam_events (
			id TEXT PRIMARY KEY,
			ts_ms BIGINT NOT NULL,
			reason TEXT NOT NULL,
			expected_mm DOUBLE PRECISION NOT NULL,
			actual_mm DOUBLE PRECISION NOT NULL,
			deficit_mm DOUBLE PRECISION NOT NULL,
			pass_ratio DOUBLE PRECISION NOT NULL,
			hard_percent DOUBLE PRECISION NOT NULL,
			soft_percent DOUBLE PRECISION NOT NULL,
			movement_pulses BIGINT NOT NULL,
			pause_sent BOOLEAN NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jam_events_ts ON jam_events(ts_ms)`,
	})
}
