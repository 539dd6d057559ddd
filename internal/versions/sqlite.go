package versions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"grimm.is/ruledit/internal/clock"
)

const schema = `
CREATE TABLE IF NOT EXISTS config_versions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device_name TEXT NOT NULL,
	version INTEGER NOT NULL,
	config_type TEXT NOT NULL,
	config_data TEXT NOT NULL,
	description TEXT,
	created_at DATETIME NOT NULL,
	UNIQUE (device_name, version)
);
CREATE INDEX IF NOT EXISTS idx_versions_device ON config_versions(device_name);
`

// SQLiteStore keeps versions in a SQLite database.
type SQLiteStore struct {
	db    *sql.DB
	clock clock.Clock
}

// OpenSQLite opens (creating if needed) the database at path. The path
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string, clk clock.Clock) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("create version dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open version db: %w", err)
	}
	// One connection: an in-memory database exists per connection, and
	// SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create version table: %w", err)
	}

	return &SQLiteStore{db: db, clock: clock.Or(clk)}, nil
}

// Save stores rec as the next version of its device.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock.Now().UTC().Truncate(time.Microsecond)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	var latest sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT MAX(version) FROM config_versions WHERE device_name = ?`, rec.DeviceName).Scan(&latest)
	if err != nil {
		return fmt.Errorf("query latest version: %w", err)
	}

	version := int(latest.Int64) + 1
	res, err := tx.ExecContext(ctx, `
		INSERT INTO config_versions (device_name, version, config_type, config_data, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.DeviceName, version, rec.ConfigType, rec.ConfigData, rec.Description, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("version id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit version: %w", err)
	}

	rec.ID = id
	rec.Version = version
	return nil
}

// List returns version metadata newest first.
func (s *SQLiteStore) List(ctx context.Context, device string) ([]Record, error) {
	query := `SELECT id, device_name, version, config_type, description, created_at FROM config_versions`
	var args []any
	if device != "" {
		query += " WHERE device_name = ?"
		args = append(args, device)
	}
	query += " ORDER BY id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var desc sql.NullString
		if err := rows.Scan(&rec.ID, &rec.DeviceName, &rec.Version, &rec.ConfigType, &desc, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		rec.Description = desc.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get returns the full record.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*Record, error) {
	var rec Record
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, device_name, version, config_type, config_data, description, created_at
		FROM config_versions WHERE id = ?
	`, id).Scan(&rec.ID, &rec.DeviceName, &rec.Version, &rec.ConfigType, &rec.ConfigData, &desc, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get version %d: %w", id, err)
	}
	rec.Description = desc.String
	return &rec, nil
}

// Devices returns device names with at least one version.
func (s *SQLiteStore) Devices(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT device_name FROM config_versions ORDER BY device_name`)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	devices := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, name)
	}
	return devices, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func validate(rec *Record) error {
	if rec == nil {
		return errors.New("nil version record")
	}
	if rec.DeviceName == "" {
		return errors.New("version record needs a device name")
	}
	if rec.ConfigType == "" {
		return errors.New("version record needs a config type")
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
