// Package store persists the trust list, the protection toggle, and
// the scan result cache in a local SQLite database.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	semver "github.com/Masterminds/semver/v3"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Salta1414/sapo-cli/internal/risk"
)

// ErrCorrupt marks state store damage. Callers must not enforce
// Block/Warn decisions on top of it; the safe reaction is a loud
// warning and a pass-through.
var ErrCorrupt = errors.New("state store corrupted")

// IsCorrupt reports whether err indicates state store corruption
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}

// Store manages the SQLite database backing all local state
type Store struct {
	db     *sql.DB
	dbPath string
}

// TrustEntry is one user-added trust rule
type TrustEntry struct {
	Name       string
	Constraint string // version constraint, "*" for any
	AddedAt    time.Time
}

// New opens the store, initializing the schema if needed
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return s, nil
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS verdicts (
		name TEXT NOT NULL,
		version TEXT NOT NULL,
		registry TEXT NOT NULL DEFAULT 'npm',
		verdict TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (name, version, registry)
	);

	CREATE TABLE IF NOT EXISTS trust (
		name TEXT NOT NULL,
		constrnt TEXT NOT NULL DEFAULT '*',
		added_at DATETIME NOT NULL,
		PRIMARY KEY (name, constrnt)
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// PutVerdict caches a package verdict. Trusted verdicts are not
// cached: trust is checked before the cache and may be revoked.
func (s *Store) PutVerdict(v risk.PackageVerdict) error {
	if v.Trusted {
		return nil
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode verdict: %w", err)
	}

	query := `
	INSERT INTO verdicts (name, version, registry, verdict, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(name, version, registry) DO UPDATE SET
		verdict = excluded.verdict,
		created_at = excluded.created_at
	`

	_, err = s.db.Exec(query,
		v.Package.Name, v.Package.Version, v.Package.Registry,
		string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to cache verdict: %w", err)
	}
	return nil
}

// GetVerdict returns a cached verdict if one exists and is younger
// than ttl. A ttl of zero disables expiry.
func (s *Store) GetVerdict(ref risk.PackageRef, ttl time.Duration) (*risk.PackageVerdict, error) {
	query := `SELECT verdict, created_at FROM verdicts
		WHERE name = ? AND version = ? AND registry = ?`

	var payload string
	var createdAt time.Time
	err := s.db.QueryRow(query, ref.Name, ref.Version, ref.Registry).Scan(&payload, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: verdict lookup failed: %v", ErrCorrupt, err)
	}

	if ttl > 0 && time.Since(createdAt) > ttl {
		s.db.Exec(`DELETE FROM verdicts WHERE name = ? AND version = ? AND registry = ?`,
			ref.Name, ref.Version, ref.Registry)
		return nil, nil
	}

	var v risk.PackageVerdict
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, fmt.Errorf("%w: undecodable cached verdict for %s: %v", ErrCorrupt, ref, err)
	}
	return &v, nil
}

// ClearCache removes all cached verdicts
func (s *Store) ClearCache() error {
	_, err := s.db.Exec(`DELETE FROM verdicts`)
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// CacheSize returns the number of cached verdicts
func (s *Store) CacheSize() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM verdicts`).Scan(&n)
	return n, err
}

// AddTrust appends a trust entry. Constraint may be "*" or any
// semver constraint like "^4.0.0".
func (s *Store) AddTrust(name, constraint string) error {
	if constraint == "" {
		constraint = "*"
	}
	if constraint != "*" {
		if _, err := semver.NewConstraint(constraint); err != nil {
			return fmt.Errorf("invalid version constraint %q: %w", constraint, err)
		}
	}

	_, err := s.db.Exec(`INSERT OR IGNORE INTO trust (name, constrnt, added_at) VALUES (?, ?, ?)`,
		name, constraint, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add trust entry: %w", err)
	}
	return nil
}

// RemoveTrust deletes all trust entries for a package name
func (s *Store) RemoveTrust(name string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM trust WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("failed to remove trust entry: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListTrust returns all trust entries, oldest first
func (s *Store) ListTrust() ([]TrustEntry, error) {
	rows, err := s.db.Query(`SELECT name, constrnt, added_at FROM trust ORDER BY added_at`)
	if err != nil {
		return nil, fmt.Errorf("%w: trust list query failed: %v", ErrCorrupt, err)
	}
	defer rows.Close()

	var entries []TrustEntry
	for rows.Next() {
		var e TrustEntry
		if err := rows.Scan(&e.Name, &e.Constraint, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("%w: trust row scan failed: %v", ErrCorrupt, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// IsTrusted reports whether a package version matches any trust entry.
// A "*" constraint matches every version; otherwise the version must
// parse as semver and satisfy the stored constraint.
func (s *Store) IsTrusted(name, version string) (bool, error) {
	rows, err := s.db.Query(`SELECT constrnt FROM trust WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("%w: trust lookup failed: %v", ErrCorrupt, err)
	}
	defer rows.Close()

	for rows.Next() {
		var constraint string
		if err := rows.Scan(&constraint); err != nil {
			return false, fmt.Errorf("%w: trust row scan failed: %v", ErrCorrupt, err)
		}
		if constraint == "*" {
			return true, nil
		}
		c, err := semver.NewConstraint(constraint)
		if err != nil {
			continue // validated on insert; skip anything that slipped in
		}
		v, err := semver.NewVersion(version)
		if err != nil {
			continue
		}
		if c.Check(v) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Enabled returns the protection toggle, defaulting to on
func (s *Store) Enabled() (bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = 'enabled'`).Scan(&value)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("%w: settings lookup failed: %v", ErrCorrupt, err)
	}
	return value != "0", nil
}

// SetEnabled persists the protection toggle
func (s *Store) SetEnabled(enabled bool) error {
	value := "1"
	if !enabled {
		value = "0"
	}
	_, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES ('enabled', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, value)
	if err != nil {
		return fmt.Errorf("failed to persist toggle: %w", err)
	}
	return nil
}
