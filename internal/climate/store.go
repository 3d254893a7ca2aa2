package climate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-thermostat/internal/thermostat"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// commandTimeFormat is fixed width so stored timestamps sort as text.
	commandTimeFormat = "2006-01-02T15:04:05.000000Z"
)

// CommandEntry is one row of the heater command history.
type CommandEntry struct {
	ID        int64     `json:"id"`
	EntryID   string    `json:"entry_id"`
	EntityID  string    `json:"entity_id"`
	Service   string    `json:"service"`
	DesiredOn bool      `json:"desired_on"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is what an Entity persists through.
type Store interface {
	thermostat.Store
	SaveSnapshot(ctx context.Context, entryID string, snap thermostat.Snapshot) error
	LoadOptions(ctx context.Context, entryID string) (thermostat.Options, error)
	RecordCommand(ctx context.Context, entryID string, rec thermostat.CommandRecord) error
}

// SQLiteStore persists thermostat snapshots, runtime options and heater
// command history in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store.
//
// Parameters:
//   - db: Open SQLite connection with the thermostat migrations applied
//
// Returns:
//   - *SQLiteStore: Store instance ready for use
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

var _ Store = (*SQLiteStore)(nil)

// LoadSnapshot returns the last saved snapshot of an entry, or nil when
// the entry has never been saved.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, entryID string) (*thermostat.Snapshot, error) {
	var target sql.NullFloat64
	var mode sql.NullString

	err := s.db.QueryRowContext(ctx,
		"SELECT target_temp, hvac_mode FROM thermostat_snapshots WHERE entry_id = ?",
		entryID,
	).Scan(&target, &mode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // absence is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}

	snap := &thermostat.Snapshot{}
	if target.Valid {
		v := target.Float64
		snap.TargetTemp = &v
	}
	if mode.Valid {
		snap.HVACMode = mode.String
	}
	return snap, nil
}

// SaveSnapshot stores the target temperature and mode of an entry,
// replacing any earlier snapshot.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, entryID string, snap thermostat.Snapshot) error {
	if entryID == "" {
		return fmt.Errorf("entry id is required")
	}

	var target any
	if snap.TargetTemp != nil {
		target = *snap.TargetTemp
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO thermostat_snapshots (entry_id, target_temp, hvac_mode, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(entry_id) DO UPDATE SET
		   target_temp = excluded.target_temp,
		   hvac_mode = excluded.hvac_mode,
		   updated_at = excluded.updated_at`,
		entryID, target, nullableString(snap.HVACMode), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// LoadOptions returns the runtime options of an entry. An entry without
// stored options gets empty Options.
func (s *SQLiteStore) LoadOptions(ctx context.Context, entryID string) (thermostat.Options, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT options FROM thermostat_options WHERE entry_id = ?",
		entryID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return thermostat.Options{}, nil
	}
	if err != nil {
		return thermostat.Options{}, fmt.Errorf("querying options: %w", err)
	}

	var opts thermostat.Options
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		return thermostat.Options{}, fmt.Errorf("unmarshalling options: %w", err)
	}
	return opts, nil
}

// UpdateOptions replaces the runtime options of an entry.
func (s *SQLiteStore) UpdateOptions(ctx context.Context, entryID string, opts thermostat.Options) error {
	if entryID == "" {
		return fmt.Errorf("entry id is required")
	}

	data, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("marshalling options: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO thermostat_options (entry_id, options, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(entry_id) DO UPDATE SET
		   options = excluded.options,
		   updated_at = excluded.updated_at`,
		entryID, string(data), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving options: %w", err)
	}
	return nil
}

// RecordCommand appends a heater command to the history.
func (s *SQLiteStore) RecordCommand(ctx context.Context, entryID string, rec thermostat.CommandRecord) error {
	if entryID == "" {
		return fmt.Errorf("entry id is required")
	}

	issued := rec.IssuedAt
	if issued.IsZero() {
		issued = time.Now()
	}
	var errText string
	if rec.Err != nil {
		errText = rec.Err.Error()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO thermostat_commands (entry_id, entity_id, service, desired_on, success, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entryID, rec.EntityID, rec.Service,
		boolToInt(rec.DesiredOn), boolToInt(rec.Err == nil),
		nullableString(errText),
		issued.UTC().Format(commandTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting command: %w", err)
	}
	return nil
}

// RecentCommands returns the newest commands of an entry first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - entryID: Thermostat entry id
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []CommandEntry: History entries ordered by created_at DESC
//   - error: nil on success, otherwise the underlying database error
func (s *SQLiteStore) RecentCommands(ctx context.Context, entryID string, limit int) ([]CommandEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entry_id, entity_id, service, desired_on, success, error, created_at
		 FROM thermostat_commands
		 WHERE entry_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		entryID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	entries := make([]CommandEntry, 0, limit)
	for rows.Next() {
		var e CommandEntry
		var desiredOn, success int
		var errText sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &e.EntryID, &e.EntityID, &e.Service,
			&desiredOn, &success, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}

		e.DesiredOn = desiredOn != 0
		e.Success = success != 0
		if errText.Valid {
			e.Error = errText.String
		}
		t, err := time.Parse(commandTimeFormat, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing command timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}

	return entries, nil
}

// PruneCommands deletes command history older than the given age.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (s *SQLiteStore) PruneCommands(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}

	cutoff := time.Now().Add(-olderThan).UTC().Format(commandTimeFormat)
	result, err := s.db.ExecContext(ctx, "DELETE FROM thermostat_commands WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning commands: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned commands: %w", err)
	}
	return deleted, nil
}

// nullableString returns nil for empty strings so they are stored as NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
