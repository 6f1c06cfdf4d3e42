// Package store implements the persisted entity store over Postgres.
// It owns every query the generator and the analytics engine run; the
// schema (events, sensor_data, alerts) is managed at deploy time.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Sadiqib0/Citypulse/internal/config"
	"github.com/Sadiqib0/Citypulse/internal/models"
)

// Store wraps the database handle. All methods are safe for concurrent
// use; database/sql handles pooling.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open connects to Postgres and verifies the connection.
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return New(db, log), nil
}

// New builds a Store over an existing handle. Tests pass a mocked one.
func New(db *sql.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// EventFilter narrows ListEvents. Zero values mean "no constraint";
// the default order is created_at descending.
type EventFilter struct {
	Type       models.EventType
	Severity   models.Severity
	Since      time.Time
	Until      time.Time
	ActiveOnly bool
	Ascending  bool
	Limit      int
	Offset     int
}

const eventColumns = "id, event_type, severity, title, description, location, latitude, longitude, meta_data, is_active, created_at, updated_at"

// InsertEvent persists one event.
func (s *Store) InsertEvent(ctx context.Context, e *models.Event) error {
	meta, err := marshalMeta(e.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.Type, e.Severity, e.Title, nullString(e.Description), nullString(e.Location),
		e.Latitude, e.Longitude, meta, e.IsActive, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// ListEvents returns events matching the filter.
func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]models.Event, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Type != "" {
		conds = append(conds, "event_type = "+arg(f.Type))
	}
	if f.Severity != "" {
		conds = append(conds, "severity = "+arg(f.Severity))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= "+arg(f.Since))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "created_at <= "+arg(f.Until))
	}
	if f.ActiveOnly {
		conds = append(conds, "is_active = TRUE")
	}

	query := "SELECT " + eventColumns + " FROM events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if f.Ascending {
		query += " ORDER BY created_at ASC"
	} else {
		query += " ORDER BY created_at DESC"
	}
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEvents counts events, optionally only active ones.
func (s *Store) CountEvents(ctx context.Context, activeOnly bool) (int64, error) {
	query := "SELECT COUNT(*) FROM events"
	if activeOnly {
		query += " WHERE is_active = TRUE"
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// EventCountsByType groups event counts by type.
func (s *Store) EventCountsByType(ctx context.Context) (map[string]int64, error) {
	return s.groupCount(ctx, "SELECT event_type, COUNT(*) FROM events GROUP BY event_type")
}

// EventCountsBySeverity groups event counts by severity.
func (s *Store) EventCountsBySeverity(ctx context.Context) (map[string]int64, error) {
	return s.groupCount(ctx, "SELECT severity, COUNT(*) FROM events GROUP BY severity")
}

func (s *Store) groupCount(ctx context.Context, query string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// CountAlerts counts alerts, optionally only unresolved ones.
func (s *Store) CountAlerts(ctx context.Context, unresolvedOnly bool) (int64, error) {
	query := "SELECT COUNT(*) FROM alerts"
	if unresolvedOnly {
		query += " WHERE is_resolved = FALSE"
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n, nil
}

// InsertReading appends one sensor reading.
func (s *Store) InsertReading(ctx context.Context, r *models.SensorReading) error {
	meta, err := marshalMeta(r.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sensor_data (id, sensor_id, timestamp, value, unit, quality, meta_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.SensorID, r.Timestamp, r.Value, nullString(r.Unit), r.Quality, meta,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// ListReadings returns readings for one sensor since the cutoff,
// ascending by time.
func (s *Store) ListReadings(ctx context.Context, sensorID string, since time.Time) ([]models.SensorReading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sensor_id, timestamp, value, unit, quality, meta_data
		 FROM sensor_data
		 WHERE sensor_id = $1 AND timestamp >= $2
		 ORDER BY timestamp ASC`,
		sensorID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	defer rows.Close()

	var readings []models.SensorReading
	for rows.Next() {
		var (
			r    models.SensorReading
			unit sql.NullString
			meta []byte
		)
		if err := rows.Scan(&r.ID, &r.SensorID, &r.Timestamp, &r.Value, &unit, &r.Quality, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.Unit = unit.String
		if r.Metadata, err = unmarshalMeta(meta); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// AverageReadingValue returns the mean value across all stored
// readings, 0 when there are none.
func (s *Store) AverageReadingValue(ctx context.Context) (float64, error) {
	var avg float64
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(AVG(value), 0) FROM sensor_data").Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to average readings: %w", err)
	}
	return avg, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (models.Event, error) {
	var (
		e           models.Event
		description sql.NullString
		location    sql.NullString
		meta        []byte
	)
	err := row.Scan(&e.ID, &e.Type, &e.Severity, &e.Title, &description, &location,
		&e.Latitude, &e.Longitude, &meta, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to scan event: %w", err)
	}
	e.Description = description.String
	e.Location = location.String
	if e.Metadata, err = unmarshalMeta(meta); err != nil {
		return models.Event{}, err
	}
	return e, nil
}

func marshalMeta(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return data, nil
}

func unmarshalMeta(data []byte) (map[string]interface{}, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
