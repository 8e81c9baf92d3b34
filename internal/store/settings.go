package store

import (
	"database/sql"
	"strconv"
	"time"
)

// SettingsStore is a small dynamic key-value store. Jobs use it to persist
// run markers (for cadence gating) across restarts.
type SettingsStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
	GetInt(key string, defaultVal int) int
	SetInt(key string, value int) error
	GetBool(key string, defaultVal bool) bool
	SetBool(key string, value bool) error
	GetTime(key string) (time.Time, bool)
	SetTime(key string, value time.Time) error
}

// SQLiteSettingsStore implements SettingsStore on the shared database handle.
type SQLiteSettingsStore struct {
	db *sql.DB
}

var _ SettingsStore = (*SQLiteSettingsStore)(nil)

// NewSQLiteSettingsStore creates the settings table if needed.
func NewSQLiteSettingsStore(db *sql.DB) (*SQLiteSettingsStore, error) {
	store := &SQLiteSettingsStore{db: db}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return nil, err
	}

	return store, nil
}

// Get retrieves a setting value
func (s *SQLiteSettingsStore) Get(key string) (string, bool) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// Set sets a setting value
func (s *SQLiteSettingsStore) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// Delete removes a setting
func (s *SQLiteSettingsStore) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM settings WHERE key = ?", key)
	return err
}

// GetInt retrieves an integer setting
func (s *SQLiteSettingsStore) GetInt(key string, defaultVal int) int {
	value, ok := s.Get(key)
	if !ok {
		return defaultVal
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultVal
	}
	return result
}

// SetInt sets an integer setting
func (s *SQLiteSettingsStore) SetInt(key string, value int) error {
	return s.Set(key, strconv.Itoa(value))
}

// GetBool retrieves a boolean setting
func (s *SQLiteSettingsStore) GetBool(key string, defaultVal bool) bool {
	value, ok := s.Get(key)
	if !ok {
		return defaultVal
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return defaultVal
	}
	return result
}

// SetBool sets a boolean setting
func (s *SQLiteSettingsStore) SetBool(key string, value bool) error {
	return s.Set(key, strconv.FormatBool(value))
}

// GetTime retrieves a timestamp setting stored as RFC3339
func (s *SQLiteSettingsStore) GetTime(key string) (time.Time, bool) {
	value, ok := s.Get(key)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetTime sets a timestamp setting as RFC3339
func (s *SQLiteSettingsStore) SetTime(key string, value time.Time) error {
	return s.Set(key, value.UTC().Format(time.RFC3339))
}
