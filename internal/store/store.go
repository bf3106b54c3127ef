// Package store provides SQLite-backed persistence for trackd.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/omerbl/trackd/internal/models"
	_ "modernc.org/sqlite"
)

// ErrRunningExists indicates the owner already has an entry with is_running set.
var ErrRunningExists = fmt.Errorf("owner already has a running entry")

// ErrEntryNotFound indicates the referenced entry does not exist.
var ErrEntryNotFound = fmt.Errorf("entry not found")

// Store provides access to the trackd SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
//
// Timestamps are stored as unix seconds so that duration_minutes can be an
// exact generated column: it is derived by the database from start_ts/end_ts
// and is not writable by any client, which is what guarantees durations are
// always consistent with the two timestamps. The partial unique index caps
// each owner at a single running entry.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS time_entries (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		project_id TEXT,
		client_id TEXT,
		description TEXT,
		start_ts INTEGER NOT NULL,
		end_ts INTEGER,
		duration_minutes INTEGER GENERATED ALWAYS AS ((end_ts - start_ts) / 60) VIRTUAL,
		is_billable INTEGER NOT NULL DEFAULT 0,
		hourly_rate REAL,
		is_running INTEGER NOT NULL DEFAULT 0,
		tags TEXT
	);

	CREATE TABLE IF NOT EXISTS profiles (
		owner_id TEXT PRIMARY KEY,
		display_name TEXT,
		hourly_rate REAL NOT NULL DEFAULT 0,
		timezone TEXT
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		entry_id TEXT,
		outcome TEXT NOT NULL,
		detail TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_one_running ON time_entries(owner_id) WHERE is_running = 1;
	CREATE INDEX IF NOT EXISTS idx_entries_owner_start ON time_entries(owner_id, start_ts);
	CREATE INDEX IF NOT EXISTS idx_audit_owner ON audit_log(owner_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// NewEntry carries the client-writable fields of an entry at creation time.
type NewEntry struct {
	OwnerID     string
	ProjectID   string
	ClientID    string
	Description string
	StartTime   time.Time
	IsBillable  bool
	HourlyRate  *float64
	Tags        []string
}

// --- Entry Operations ---

// CreateEntry inserts a new running entry. It fails with ErrRunningExists if
// the owner already has one.
func (s *Store) CreateEntry(p NewEntry) (*models.TimeEntry, error) {
	start := p.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	start = start.Truncate(time.Second)

	entry := &models.TimeEntry{
		ID:          uuid.New().String(),
		OwnerID:     p.OwnerID,
		ProjectID:   p.ProjectID,
		ClientID:    p.ClientID,
		Description: p.Description,
		StartTime:   start.UTC(),
		IsBillable:  p.IsBillable,
		HourlyRate:  p.HourlyRate,
		IsRunning:   true,
		Tags:        p.Tags,
	}

	_, err := s.db.Exec(
		`INSERT INTO time_entries (id, owner_id, project_id, client_id, description, start_ts, is_billable, hourly_rate, is_running, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		entry.ID, entry.OwnerID, nullString(entry.ProjectID), nullString(entry.ClientID), nullString(entry.Description),
		entry.StartTime.Unix(), boolToInt(entry.IsBillable), nullFloat(entry.HourlyRate), tagsJSON(entry.Tags),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "unique constraint") {
			return nil, ErrRunningExists
		}
		return nil, fmt.Errorf("insert entry: %w", err)
	}
	return entry, nil
}

const entryColumns = `id, owner_id, project_id, client_id, description, start_ts, end_ts, duration_minutes, is_billable, hourly_rate, is_running, tags`

// GetEntry retrieves an entry by ID. Returns nil if it does not exist.
func (s *Store) GetEntry(id string) (*models.TimeEntry, error) {
	row := s.db.QueryRow(`SELECT `+entryColumns+` FROM time_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query entry: %w", err)
	}
	return entry, nil
}

// GetRunningEntry returns the owner's running entry, or nil if there is none.
func (s *Store) GetRunningEntry(ownerID string) (*models.TimeEntry, error) {
	row := s.db.QueryRow(`SELECT `+entryColumns+` FROM time_entries WHERE owner_id = ? AND is_running = 1`, ownerID)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query running entry: %w", err)
	}
	return entry, nil
}

// ListEntriesSince returns the owner's entries whose start time is at or after
// since, newest first.
func (s *Store) ListEntriesSince(ownerID string, since time.Time) ([]models.TimeEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+entryColumns+` FROM time_entries WHERE owner_id = ? AND start_ts >= ? ORDER BY start_ts DESC`,
		ownerID, since.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []models.TimeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// SumCompletedSince returns the total duration_minutes of the owner's
// completed entries whose start time is at or after since.
func (s *Store) SumCompletedSince(ownerID string, since time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(duration_minutes), 0) FROM time_entries
		 WHERE owner_id = ? AND start_ts >= ? AND duration_minutes IS NOT NULL`,
		ownerID, since.Unix(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum durations: %w", err)
	}
	return total, nil
}

// UpdateEntry applies a partial update to an entry and returns the updated
// row. Only the fields carried by the patch can change; duration is derived
// by the schema.
func (s *Store) UpdateEntry(id string, patch models.EntryPatch) (*models.TimeEntry, error) {
	var sets []string
	var args []interface{}

	if patch.EndTime != nil {
		sets = append(sets, "end_ts = ?")
		args = append(args, patch.EndTime.Unix())
	}
	if patch.IsRunning != nil {
		sets = append(sets, "is_running = ?")
		args = append(args, boolToInt(*patch.IsRunning))
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nullString(*patch.Description))
	}
	if patch.Tags != nil {
		sets = append(sets, "tags = ?")
		args = append(args, tagsJSON(patch.Tags))
	}
	if len(sets) == 0 {
		return s.GetEntry(id)
	}

	args = append(args, id)
	result, err := s.db.Exec(`UPDATE time_entries SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrEntryNotFound
	}
	return s.GetEntry(id)
}

// DeleteEntry removes an entry.
func (s *Store) DeleteEntry(id string) error {
	result, err := s.db.Exec(`DELETE FROM time_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// --- Profile Operations ---

// UpsertProfile creates or replaces an owner profile.
func (s *Store) UpsertProfile(p models.Profile) error {
	_, err := s.db.Exec(
		`INSERT INTO profiles (owner_id, display_name, hourly_rate, timezone) VALUES (?, ?, ?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET display_name = excluded.display_name, hourly_rate = excluded.hourly_rate, timezone = excluded.timezone`,
		p.OwnerID, nullString(p.DisplayName), p.HourlyRate, nullString(p.Timezone),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// GetProfile retrieves an owner profile. Returns nil if it does not exist.
func (s *Store) GetProfile(ownerID string) (*models.Profile, error) {
	p := &models.Profile{}
	var displayName, timezone sql.NullString

	err := s.db.QueryRow(
		`SELECT owner_id, display_name, hourly_rate, timezone FROM profiles WHERE owner_id = ?`,
		ownerID,
	).Scan(&p.OwnerID, &displayName, &p.HourlyRate, &timezone)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	if displayName.Valid {
		p.DisplayName = displayName.String
	}
	if timezone.Valid {
		p.Timezone = timezone.String
	}
	return p, nil
}

// --- Audit Operations ---

// AppendAudit writes one audit record.
func (s *Store) AppendAudit(action, ownerID, entryID, outcome, detail string) (*models.AuditRecord, error) {
	rec := &models.AuditRecord{
		ID:        uuid.New().String(),
		Action:    action,
		OwnerID:   ownerID,
		EntryID:   entryID,
		Outcome:   outcome,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO audit_log (id, action, owner_id, entry_id, outcome, detail, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Action, rec.OwnerID, nullString(rec.EntryID), rec.Outcome, nullString(rec.Detail), rec.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit record: %w", err)
	}
	return rec, nil
}

// ListAudit returns the owner's most recent audit records, newest first.
func (s *Store) ListAudit(ownerID string, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, action, owner_id, entry_id, outcome, detail, timestamp FROM audit_log WHERE owner_id = ? ORDER BY timestamp DESC LIMIT ?`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var recs []models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var entryID, detail sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Action, &rec.OwnerID, &entryID, &rec.Outcome, &detail, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if entryID.Valid {
			rec.EntryID = entryID.String
		}
		if detail.Valid {
			rec.Detail = detail.String
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// --- Helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*models.TimeEntry, error) {
	entry := &models.TimeEntry{}
	var projectID, clientID, description, tags sql.NullString
	var startTS int64
	var endTS, duration sql.NullInt64
	var hourlyRate sql.NullFloat64
	var isBillable, isRunning int

	err := row.Scan(
		&entry.ID, &entry.OwnerID, &projectID, &clientID, &description,
		&startTS, &endTS, &duration, &isBillable, &hourlyRate, &isRunning, &tags,
	)
	if err != nil {
		return nil, err
	}

	entry.StartTime = time.Unix(startTS, 0).UTC()
	if projectID.Valid {
		entry.ProjectID = projectID.String
	}
	if clientID.Valid {
		entry.ClientID = clientID.String
	}
	if description.Valid {
		entry.Description = description.String
	}
	if endTS.Valid {
		end := time.Unix(endTS.Int64, 0).UTC()
		entry.EndTime = &end
	}
	if duration.Valid {
		d := duration.Int64
		entry.DurationMinutes = &d
	}
	if hourlyRate.Valid {
		rate := hourlyRate.Float64
		entry.HourlyRate = &rate
	}
	entry.IsBillable = isBillable != 0
	entry.IsRunning = isRunning != 0
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &entry.Tags); err != nil {
			return nil, fmt.Errorf("parse tags: %w", err)
		}
	}
	return entry, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func tagsJSON(tags []string) interface{} {
	if len(tags) == 0 {
		return nil
	}
	b, _ := json.Marshal(tags)
	return string(b)
}
