package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Sadiqib0/Citypulse/internal/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, zap.NewNop()), mock
}

func f64(v float64) *float64 { return &v }

func coord(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func eventRows(events ...models.Event) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "event_type", "severity", "title", "description", "location",
		"latitude", "longitude", "meta_data", "is_active", "created_at", "updated_at",
	})
	for _, e := range events {
		rows.AddRow(e.ID, string(e.Type), string(e.Severity), e.Title, e.Description, e.Location,
			coord(e.Latitude), coord(e.Longitude), []byte(`{"congestion_level":0.7}`), e.IsActive, e.CreatedAt, e.UpdatedAt)
	}
	return rows
}

func sampleEvent() models.Event {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	return models.Event{
		ID:        uuid.New(),
		Type:      models.EventTypeTraffic,
		Severity:  models.SeverityHigh,
		Title:     "Road Accident",
		Location:  "Broadway",
		Latitude:  f64(40.7128),
		Longitude: f64(-74.006),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestInsertEvent(t *testing.T) {
	s, mock := newMockStore(t)
	e := sampleEvent()
	e.Metadata = map[string]interface{}{"congestion_level": 0.7}

	mock.ExpectExec("INSERT INTO events").
		WithArgs(e.ID, e.Type, e.Severity, e.Title, sqlmock.AnyArg(), sqlmock.AnyArg(),
			e.Latitude, e.Longitude, []byte(`{"congestion_level":0.7}`), e.IsActive, e.CreatedAt, e.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.InsertEvent(context.Background(), &e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEventNilMetadata(t *testing.T) {
	s, mock := newMockStore(t)
	e := sampleEvent()

	// Nil metadata is stored as an empty JSON object, not SQL NULL.
	mock.ExpectExec("INSERT INTO events").
		WithArgs(e.ID, e.Type, e.Severity, e.Title, sqlmock.AnyArg(), sqlmock.AnyArg(),
			e.Latitude, e.Longitude, []byte(`{}`), e.IsActive, e.CreatedAt, e.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.InsertEvent(context.Background(), &e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEventsNoFilter(t *testing.T) {
	s, mock := newMockStore(t)
	e := sampleEvent()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + eventColumns + " FROM events ORDER BY created_at DESC")).
		WillReturnRows(eventRows(e))

	events, err := s.ListEvents(context.Background(), EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, e.ID, events[0].ID)
	assert.Equal(t, models.EventTypeTraffic, events[0].Type)
	assert.Equal(t, 0.7, events[0].Metadata["congestion_level"])
}

func TestListEventsFilters(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM events WHERE event_type = \$1 AND created_at >= \$2 AND is_active = TRUE ORDER BY created_at DESC LIMIT \$3`).
		WithArgs(models.EventTypeTraffic, since, 100).
		WillReturnRows(eventRows())

	events, err := s.ListEvents(context.Background(), EventFilter{
		Type:       models.EventTypeTraffic,
		Since:      since,
		ActiveOnly: true,
		Limit:      100,
	})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEventsAscending(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM events ORDER BY created_at ASC`).
		WillReturnRows(eventRows())

	_, err := s.ListEvents(context.Background(), EventFilter{Ascending: true})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountEvents(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM events")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := s.CountEvents(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestCountEventsActiveOnly(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM events WHERE is_active = TRUE")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.CountEvents(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestEventCountsByType(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT event_type, COUNT(*) FROM events GROUP BY event_type")).
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}).
			AddRow("traffic", 10).
			AddRow("weather", 3))

	counts, err := s.EventCountsByType(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"traffic": 10, "weather": 3}, counts)
}

func TestCountAlertsUnresolved(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM alerts WHERE is_resolved = FALSE")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := s.CountAlerts(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestInsertReading(t *testing.T) {
	s, mock := newMockStore(t)
	r := models.SensorReading{
		ID:        uuid.New(),
		SensorID:  "SENSOR_001",
		Timestamp: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
		Value:     23.5,
		Unit:      "celsius",
		Quality:   0.95,
	}

	mock.ExpectExec("INSERT INTO sensor_data").
		WithArgs(r.ID, r.SensorID, r.Timestamp, r.Value, sqlmock.AnyArg(), r.Quality, []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.InsertReading(context.Background(), &r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListReadings(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Date(2026, 8, 23, 11, 0, 0, 0, time.UTC)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM sensor_data\s+WHERE sensor_id = \$1 AND timestamp >= \$2\s+ORDER BY timestamp ASC`).
		WithArgs("SENSOR_001", since).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sensor_id", "timestamp", "value", "unit", "quality", "meta_data"}).
			AddRow(id, "SENSOR_001", since.Add(time.Minute), 23.5, "celsius", 0.95, []byte(`{"source":"field"}`)))

	readings, err := s.ListReadings(context.Background(), "SENSOR_001", since)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, id, readings[0].ID)
	assert.Equal(t, 23.5, readings[0].Value)
	assert.Equal(t, "celsius", readings[0].Unit)
	assert.Equal(t, "field", readings[0].Metadata["source"])
}

func TestAverageReadingValue(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(AVG(value), 0) FROM sensor_data")).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(21.3))

	avg, err := s.AverageReadingValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 21.3, avg)
}

func TestListEventsQueryError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .+ FROM events").
		WillReturnError(assert.AnError)

	_, err := s.ListEvents(context.Background(), EventFilter{})
	assert.ErrorContains(t, err, "failed to list events")
}
