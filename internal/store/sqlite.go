package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bandwatch/bandwatch/internal/errors"
	"github.com/bandwatch/bandwatch/internal/logging"
	"github.com/bandwatch/bandwatch/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists owners, the account registry, usage snapshots and
// scheduled message references. WAL mode is enabled so the scheduler loop
// and the ops API can read concurrently.
type SQLiteStore struct {
	mu       sync.RWMutex
	db       *sql.DB
	logger   *logging.Logger
	settings SettingsStore
	loc      *time.Location

	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at dbPath. loc is
// the civil timezone used for day-boundary queries.
func NewSQLiteStore(dbPath string, loc *time.Location) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_pragma=cache_size(2000)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	settingsStore, err := NewSQLiteSettingsStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	if loc == nil {
		loc = time.UTC
	}

	return &SQLiteStore{
		db:       db,
		logger:   logging.NewLogger(),
		settings: settingsStore,
		loc:      loc,
		now:      time.Now,
	}, nil
}

// runMigrations applies versioned schema migrations
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS owners (
					chat_id INTEGER PRIMARY KEY,
					username TEXT NOT NULL DEFAULT '',
					first_name TEXT NOT NULL DEFAULT '',
					last_name TEXT NOT NULL DEFAULT '',
					birthday DATE,
					daily_reports INTEGER NOT NULL DEFAULT 1,
					expiry_warnings INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS accounts_registry (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					owner_id INTEGER NOT NULL REFERENCES owners(chat_id),
					uuid TEXT NOT NULL UNIQUE,
					name TEXT NOT NULL DEFAULT '',
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME
				);

				CREATE TABLE IF NOT EXISTS usage_snapshots (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					account_id INTEGER NOT NULL REFERENCES accounts_registry(id),
					usage_gb REAL NOT NULL,
					taken_at DATETIME NOT NULL
				);

				CREATE TABLE IF NOT EXISTS scheduled_messages (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					job_type TEXT NOT NULL,
					chat_id INTEGER NOT NULL,
					message_id INTEGER NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(job_type, chat_id)
				);

				CREATE INDEX IF NOT EXISTS idx_registry_owner ON accounts_registry(owner_id);
				CREATE INDEX IF NOT EXISTS idx_snapshots_account_time ON usage_snapshots(account_id, taken_at);
				CREATE INDEX IF NOT EXISTS idx_snapshots_time ON usage_snapshots(taken_at);
			`,
		},
	}

	for _, migration := range migrations {
		if migration.version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return &errors.ErrDatabaseMigration{Version: migration.version, Err: err}
		}

		if _, err := tx.Exec(migration.up); err != nil {
			tx.Rollback()
			return &errors.ErrDatabaseMigration{Version: migration.version, Err: err}
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.version); err != nil {
			tx.Rollback()
			return &errors.ErrDatabaseMigration{Version: migration.version, Err: err}
		}

		if err := tx.Commit(); err != nil {
			return &errors.ErrDatabaseMigration{Version: migration.version, Err: err}
		}
	}

	return nil
}

// SetNow overrides the store's clock. Tests use it to pin day boundaries.
func (s *SQLiteStore) SetNow(now func() time.Time) {
	s.now = now
}

// Settings returns the dynamic settings store.
func (s *SQLiteStore) Settings() SettingsStore {
	return s.settings
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- snapshots ---

// AddSnapshot appends one usage reading for a registered account. takenAt is
// stored in UTC.
func (s *SQLiteStore) AddSnapshot(accountID int64, usageGB float64, takenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO usage_snapshots (account_id, usage_gb, taken_at) VALUES (?, ?, ?)",
		accountID, usageGB, takenAt.UTC(),
	)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "add snapshot", Err: err}
	}
	return nil
}

// WindowUsage computes the usage delta for one account over snapshots taken
// at or after since. The delta is end minus start where start is the usage of
// the earliest snapshot in the window and end the usage of the latest. A
// negative delta (counter reset mid-window) is floored at zero. No snapshots
// in the window means zero.
func (s *SQLiteStore) WindowUsage(accountID int64, since time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.windowUsageLocked(accountID, since)
}

func (s *SQLiteStore) windowUsageLocked(accountID int64, since time.Time) (float64, error) {
	var start, end sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT
			(SELECT usage_gb FROM usage_snapshots
				WHERE account_id = ? AND taken_at >= ?
				ORDER BY taken_at ASC LIMIT 1),
			(SELECT usage_gb FROM usage_snapshots
				WHERE account_id = ? AND taken_at >= ?
				ORDER BY taken_at DESC LIMIT 1)
	`, accountID, since.UTC(), accountID, since.UTC()).Scan(&start, &end)
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "window usage", Err: err}
	}

	if !start.Valid || !end.Valid {
		return 0, nil
	}

	delta := end.Float64 - start.Float64
	if delta < 0 {
		delta = 0
	}
	return delta, nil
}

// UsageSinceMidnight computes the usage delta since the most recent local
// midnight in the civil timezone.
func (s *SQLiteStore) UsageSinceMidnight(accountID int64) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.windowUsageLocked(accountID, s.midnight())
}

// midnight returns the most recent civil midnight as a UTC instant.
func (s *SQLiteStore) midnight() time.Time {
	local := s.now().In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc).UTC()
}

// PurgeAccountSnapshots deletes all snapshots for one account. Reporting
// jobs call it only after the report consuming the data was delivered, so a
// failed delivery keeps the snapshots for the next attempt.
func (s *SQLiteStore) PurgeAccountSnapshots(accountID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("DELETE FROM usage_snapshots WHERE account_id = ?", accountID)
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "purge account snapshots", Err: err}
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// SnapshotCount returns the total number of stored snapshots.
func (s *SQLiteStore) SnapshotCount() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM usage_snapshots").Scan(&n); err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "count snapshots", Err: err}
	}
	return n, nil
}

// --- account registry ---

// RegisterAccount adds a panel UUID under an owner. Registering an existing
// UUID reactivates it and refreshes the name.
func (s *SQLiteStore) RegisterAccount(ownerID int64, uuid, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO accounts_registry (owner_id, uuid, name)
		VALUES (?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			owner_id = excluded.owner_id,
			name = excluded.name,
			is_active = 1,
			updated_at = CURRENT_TIMESTAMP
	`, ownerID, uuid, name)
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "register account", Err: err}
	}

	var id int64
	if err := s.db.QueryRow("SELECT id FROM accounts_registry WHERE uuid = ?", uuid).Scan(&id); err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "register account", Err: err}
	}
	return id, nil
}

// DeactivateAccount marks a registered account inactive; its snapshots stay.
func (s *SQLiteStore) DeactivateAccount(uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"UPDATE accounts_registry SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE uuid = ?",
		uuid,
	)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "deactivate account", Err: err}
	}
	return nil
}

// ActiveAccounts returns all active registry rows.
func (s *SQLiteStore) ActiveAccounts() ([]models.RegisteredAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, owner_id, uuid, name, is_active, created_at, updated_at
		FROM accounts_registry
		WHERE is_active = 1
		ORDER BY id
	`)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list active accounts", Err: err}
	}
	defer rows.Close()

	var accounts []models.RegisteredAccount
	for rows.Next() {
		var acc models.RegisteredAccount
		var updatedAt sql.NullTime
		if err := rows.Scan(&acc.ID, &acc.OwnerID, &acc.UUID, &acc.Name, &acc.IsActive, &acc.CreatedAt, &updatedAt); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "list active accounts", Err: err}
		}
		if updatedAt.Valid {
			acc.UpdatedAt = &updatedAt.Time
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// AccountByUUID returns the registry row for a panel UUID, or nil.
func (s *SQLiteStore) AccountByUUID(uuid string) (*models.RegisteredAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var acc models.RegisteredAccount
	var updatedAt sql.NullTime
	err := s.db.QueryRow(`
		SELECT id, owner_id, uuid, name, is_active, created_at, updated_at
		FROM accounts_registry WHERE uuid = ?
	`, uuid).Scan(&acc.ID, &acc.OwnerID, &acc.UUID, &acc.Name, &acc.IsActive, &acc.CreatedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "account by uuid", Err: err}
	}
	if updatedAt.Valid {
		acc.UpdatedAt = &updatedAt.Time
	}
	return &acc, nil
}

// OwnersByUUID maps active panel UUIDs to their owner chat ids.
func (s *SQLiteStore) OwnersByUUID() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT uuid, owner_id FROM accounts_registry WHERE is_active = 1")
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "owners by uuid", Err: err}
	}
	defer rows.Close()

	owners := make(map[string]int64)
	for rows.Next() {
		var uuid string
		var ownerID int64
		if err := rows.Scan(&uuid, &ownerID); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "owners by uuid", Err: err}
		}
		owners[uuid] = ownerID
	}
	return owners, rows.Err()
}

// --- scheduled messages ---

// UpsertScheduledMessage records the live message a job owns in a chat,
// replacing any previous reference for the same (job_type, chat_id).
func (s *SQLiteStore) UpsertScheduledMessage(jobType string, chatID int64, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO scheduled_messages (job_type, chat_id, message_id)
		VALUES (?, ?, ?)
		ON CONFLICT(job_type, chat_id) DO UPDATE SET
			message_id = excluded.message_id,
			created_at = CURRENT_TIMESTAMP
	`, jobType, chatID, messageID)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "upsert scheduled message", Err: err}
	}
	return nil
}

// ScheduledMessages returns all live message references for a job type.
func (s *SQLiteStore) ScheduledMessages(jobType string) ([]models.ScheduledMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, job_type, chat_id, message_id, created_at
		FROM scheduled_messages WHERE job_type = ?
	`, jobType)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list scheduled messages", Err: err}
	}
	defer rows.Close()

	var messages []models.ScheduledMessage
	for rows.Next() {
		var m models.ScheduledMessage
		if err := rows.Scan(&m.ID, &m.JobType, &m.ChatID, &m.MessageID, &m.CreatedAt); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "list scheduled messages", Err: err}
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// DeleteScheduledMessage drops the reference for one (job_type, chat_id).
// Called when the remote message turned out to be stale.
func (s *SQLiteStore) DeleteScheduledMessage(jobType string, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"DELETE FROM scheduled_messages WHERE job_type = ? AND chat_id = ?",
		jobType, chatID,
	)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "delete scheduled message", Err: err}
	}
	return nil
}

// --- owners ---

// UpsertOwner creates or refreshes an owner's identity fields, preserving
// preferences and birthday on update.
func (s *SQLiteStore) UpsertOwner(chatID int64, username, firstName, lastName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO owners (chat_id, username, first_name, last_name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name
	`, chatID, username, firstName, lastName)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "upsert owner", Err: err}
	}
	return nil
}

// Owner returns one owner by chat id, or nil.
func (s *SQLiteStore) Owner(chatID int64) (*models.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var o models.Owner
	var birthday sql.NullTime
	err := s.db.QueryRow(`
		SELECT chat_id, username, first_name, last_name, birthday, daily_reports, expiry_warnings
		FROM owners WHERE chat_id = ?
	`, chatID).Scan(&o.ChatID, &o.Username, &o.FirstName, &o.LastName, &birthday, &o.DailyReports, &o.ExpiryWarnings)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "get owner", Err: err}
	}
	if birthday.Valid {
		o.Birthday = &birthday.Time
	}
	return &o, nil
}

// Owners returns all owners.
func (s *SQLiteStore) Owners() ([]models.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT chat_id, username, first_name, last_name, birthday, daily_reports, expiry_warnings
		FROM owners ORDER BY chat_id
	`)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list owners", Err: err}
	}
	defer rows.Close()

	var owners []models.Owner
	for rows.Next() {
		var o models.Owner
		var birthday sql.NullTime
		if err := rows.Scan(&o.ChatID, &o.Username, &o.FirstName, &o.LastName, &birthday, &o.DailyReports, &o.ExpiryWarnings); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "list owners", Err: err}
		}
		if birthday.Valid {
			o.Birthday = &birthday.Time
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

// SetOwnerPreferences updates an owner's delivery preferences.
func (s *SQLiteStore) SetOwnerPreferences(chatID int64, dailyReports, expiryWarnings bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"UPDATE owners SET daily_reports = ?, expiry_warnings = ? WHERE chat_id = ?",
		dailyReports, expiryWarnings, chatID,
	)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "set owner preferences", Err: err}
	}
	return nil
}

// SetBirthday records an owner's birthday; pass nil to clear it.
func (s *SQLiteStore) SetBirthday(chatID int64, birthday *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value interface{}
	if birthday != nil {
		value = birthday.Format("2006-01-02")
	}
	_, err := s.db.Exec("UPDATE owners SET birthday = ? WHERE chat_id = ?", value, chatID)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "set birthday", Err: err}
	}
	return nil
}

// BirthdaysOn returns owners whose birthday falls on the given civil
// month and day. The stored year is ignored.
func (s *SQLiteStore) BirthdaysOn(month time.Month, day int) ([]models.Owner, error) {
	owners, err := s.Owners()
	if err != nil {
		return nil, err
	}

	var matched []models.Owner
	for _, o := range owners {
		if o.Birthday == nil {
			continue
		}
		if o.Birthday.Month() == month && o.Birthday.Day() == day {
			matched = append(matched, o)
		}
	}
	return matched, nil
}

// --- maintenance ---

// Vacuum compacts the database file.
func (s *SQLiteStore) Vacuum() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("VACUUM"); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "vacuum", Err: err}
	}
	return nil
}

// Stats reports table row counts for health checks.
func (s *SQLiteStore) Stats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	for _, table := range []string{"owners", "accounts_registry", "usage_snapshots", "scheduled_messages"} {
		var n int64
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "stats " + table, Err: err}
		}
		stats[table] = n
	}
	return stats, nil
}
