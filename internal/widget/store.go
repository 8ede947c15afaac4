// Package widget mirrors derived prayer state into widget-facing persistent
// storage: a structured per-date schedule store, a flat key-value register
// holding the next-prayer snapshot, and a repaint broadcast to the widget
// host. A background scheduler re-derives the snapshot from this storage
// independently of the foreground refresh path.
package widget

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/tkaraca/prayer-widget-service/internal/models"
)

// Store wraps the SQLite file backing the widget surface. The schedule table
// is keyed by canonical date with one column per localized prayer name; the
// register table is the flat key-value store the snapshot lives in.
type Store struct {
	conn *sql.DB
}

// NewStore opens or creates the widget database at the given path.
func NewStore(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open widget db: %w", err)
	}
	// WAL lets the background job read while the app writes.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schedule (
		date TEXT PRIMARY KEY,
		imsak TEXT NOT NULL,
		gunes TEXT NOT NULL,
		ogle TEXT NOT NULL,
		ikindi TEXT NOT NULL,
		aksam TEXT NOT NULL,
		yatsi TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS register (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Day returns the stored schedule for one canonical date key.
func (s *Store) Day(date string) (models.PrayerDay, bool, error) {
	row := s.conn.QueryRow(
		"SELECT imsak, gunes, ogle, ikindi, aksam, yatsi FROM schedule WHERE date = ?", date)
	var d models.PrayerDay
	err := row.Scan(&d.Fajr, &d.Sunrise, &d.Dhuhr, &d.Asr, &d.Maghrib, &d.Isha)
	if err == sql.ErrNoRows {
		return models.PrayerDay{}, false, nil
	}
	if err != nil {
		return models.PrayerDay{}, false, err
	}
	return d, true, nil
}

// PutDays upserts the given days in one transaction. Existing dates are
// overwritten whole; dates outside the map are untouched, so a partial window
// never rewrites history.
func (s *Store) PutDays(days models.CitySchedule) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO schedule (date, imsak, gunes, ogle, ikindi, aksam, yatsi)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			imsak=excluded.imsak, gunes=excluded.gunes, ogle=excluded.ogle,
			ikindi=excluded.ikindi, aksam=excluded.aksam, yatsi=excluded.yatsi`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for date, d := range days {
		if _, err := stmt.Exec(date, d.Fajr, d.Sunrise, d.Dhuhr, d.Asr, d.Maghrib, d.Isha); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert %s: %w", date, err)
		}
	}
	return tx.Commit()
}

// PruneBefore deletes schedule rows older than the given date key.
func (s *Store) PruneBefore(date string) error {
	_, err := s.conn.Exec("DELETE FROM schedule WHERE date < ?", date)
	return err
}

// Get implements Register against the register table.
func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRow("SELECT value FROM register WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set implements Register against the register table.
func (s *Store) Set(key, value string) error {
	_, err := s.conn.Exec(
		"INSERT INTO register (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value",
		key, value)
	return err
}
