package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DateLayout is how event dates are stored and queried.
const DateLayout = "2006-01-02"

// Event is one historical incident pinned on the map.
type Event struct {
	ID          int64   `json:"id"`
	Longitude   float64 `json:"longitude"`
	Latitude    float64 `json:"latitude"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
}

// Store reads and seeds the events table.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("events db path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open events db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping events db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Init creates the schema when missing.
func (s *Store) Init(ctx context.Context) error {
	schema := `CREATE TABLE IF NOT EXISTS events (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        longitude REAL NOT NULL,
        latitude REAL NOT NULL,
        title TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        date TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS events_date ON events(date);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init events schema: %w", err)
	}
	return nil
}

// Insert adds events in one transaction and returns how many were written.
// IDs on the input are ignored.
func (s *Store) Insert(ctx context.Context, evs []Event) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (longitude, latitude, title, description, date) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range evs {
		if _, err := time.Parse(DateLayout, e.Date); err != nil {
			return 0, fmt.Errorf("event %d: bad date %q", i, e.Date)
		}
		if _, err := stmt.ExecContext(ctx, e.Longitude, e.Latitude, e.Title, e.Description, e.Date); err != nil {
			return 0, fmt.Errorf("insert event %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(evs), nil
}

// FetchEvents returns events dated within [start, end], ordered by date then id.
func (s *Store) FetchEvents(ctx context.Context, start, end time.Time) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, longitude, latitude, title, description, date
         FROM events WHERE date BETWEEN ? AND ? ORDER BY date, id`,
		start.Format(DateLayout), end.Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Longitude, &e.Latitude, &e.Title, &e.Description, &e.Date); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SampleEvents are inserted by the seeder when no workbook is given.
func SampleEvents() []Event {
	return []Event{
		{Longitude: -122.4194, Latitude: 37.7749, Title: "Event 1", Description: "Description of Event 1", Date: "2023-09-01"},
		{Longitude: -118.2437, Latitude: 34.0522, Title: "Event 2", Description: "Description of Event 2", Date: "2023-09-02"},
	}
}
