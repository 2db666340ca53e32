// Package postgres persists alert state and the alert event history.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/alert"
)

// Config selects the database. An empty DSN disables persistence.
type Config struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// Enabled reports whether a DSN is configured.
func (c Config) Enabled() bool { return c.DSN != "" }

// Validate checks the postgres section.
func (c Config) Validate(prefix string) error {
	if c.MaxOpenConns < 0 {
		return fmt.Errorf("%s.max_open_conns must be non-negative, got %d", prefix, c.MaxOpenConns)
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("%s.max_idle_conns must be non-negative, got %d", prefix, c.MaxIdleConns)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
	id               TEXT PRIMARY KEY,
	patient_id       TEXT NOT NULL,
	device_id        TEXT NOT NULL,
	vital_sign       TEXT NOT NULL,
	value            DOUBLE PRECISION NOT NULL,
	severity         TEXT NOT NULL,
	level            TEXT NOT NULL,
	threshold        DOUBLE PRECISION NOT NULL,
	status           TEXT NOT NULL,
	message          TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	last_observed_at TIMESTAMPTZ NOT NULL,
	acknowledged_at  TIMESTAMPTZ,
	acknowledged_by  TEXT NOT NULL DEFAULT '',
	notes            TEXT NOT NULL DEFAULT '',
	resolved_at      TIMESTAMPTZ,
	sequence         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS alerts_patient_status_idx ON alerts (patient_id, status);
CREATE TABLE IF NOT EXISTS alert_events (
	dedup_key  TEXT PRIMARY KEY,
	alert_id   TEXT NOT NULL REFERENCES alerts (id) ON DELETE CASCADE,
	event_type TEXT NOT NULL,
	sequence   INTEGER NOT NULL,
	at         TIMESTAMPTZ NOT NULL
);`

// Store writes alert events to PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to cfg.DSN and pings the server.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return New(db), nil
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

const upsertAlert = `
INSERT INTO alerts (
	id, patient_id, device_id, vital_sign, value, severity, level, threshold,
	status, message, created_at, last_observed_at, acknowledged_at,
	acknowledged_by, notes, resolved_at, sequence
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (id) DO UPDATE SET
	value = EXCLUDED.value,
	severity = EXCLUDED.severity,
	level = EXCLUDED.level,
	threshold = EXCLUDED.threshold,
	status = EXCLUDED.status,
	message = EXCLUDED.message,
	last_observed_at = EXCLUDED.last_observed_at,
	acknowledged_at = EXCLUDED.acknowledged_at,
	acknowledged_by = EXCLUDED.acknowledged_by,
	notes = EXCLUDED.notes,
	resolved_at = EXCLUDED.resolved_at,
	sequence = EXCLUDED.sequence
WHERE alerts.sequence < EXCLUDED.sequence`

const insertEvent = `
INSERT INTO alert_events (dedup_key, alert_id, event_type, sequence, at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (dedup_key) DO NOTHING`

// PublishAlertEvent upserts the alert row and records the event. Replays of
// the same event are no-ops, and an older sequence never overwrites a newer one.
func (s *Store) PublishAlertEvent(ctx context.Context, ev alert.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	a := ev.Alert
	if _, err := tx.ExecContext(ctx, upsertAlert,
		a.ID, a.PatientID, a.DeviceID, string(a.Vital), a.Value,
		string(a.Severity), string(a.Level), a.Threshold, string(a.Status), a.Message,
		a.CreatedAt, a.LastObservedAt, nullTime(a.AcknowledgedAt),
		a.AcknowledgedBy, a.Notes, nullTime(a.ResolvedAt), a.Sequence,
	); err != nil {
		return classify(fmt.Errorf("upsert alert %s: %w", a.ID, err))
	}
	if _, err := tx.ExecContext(ctx, insertEvent,
		ev.DedupKey(), a.ID, string(ev.Type), ev.Sequence, ev.At,
	); err != nil {
		return classify(fmt.Errorf("insert event %s: %w", ev.DedupKey(), err))
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// PurgeResolved deletes alerts resolved before the cutoff and returns how many went.
func (s *Store) PurgeResolved(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM alerts WHERE status = $1 AND resolved_at < $2`,
		string(alert.StatusResolved), before)
	if err != nil {
		return 0, fmt.Errorf("postgres: purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: purge: %w", err)
	}
	if n > 0 {
		logrus.Infof("postgres: purged %d resolved alert(s)", n)
	}
	return n, nil
}

// CountByStatus returns the number of stored alerts per status.
func (s *Store) CountByStatus(ctx context.Context) (map[alert.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM alerts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("postgres: count: %w", err)
	}
	defer rows.Close()

	counts := make(map[alert.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("postgres: count: %w", err)
		}
		counts[alert.Status(status)] = n
	}
	return counts, rows.Err()
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// classify marks data and integrity errors permanent so the dispatcher stops
// retrying them. Everything else is transient.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23":
			return backoff.Permanent(err)
		}
	}
	return &sim.TransientTransportError{Sink: "postgres", Err: err}
}
