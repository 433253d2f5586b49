// Package permstore caches permission grants per plugin in a SQLite file so a
// plugin is not asked again after every host restart.
package permstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"pane-renamer/internal/plugin"
)

const schemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_meta (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS grants (
	plugin      TEXT NOT NULL,
	permission  TEXT NOT NULL,
	granted_at  TEXT NOT NULL,
	PRIMARY KEY (plugin, permission)
);
`

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("permission store closed")

// Grant is one cached permission.
type Grant struct {
	Plugin     string
	Permission plugin.PermissionType
	GrantedAt  time.Time
}

// Store is a SQLite-backed grant cache. Queries are safe for concurrent use;
// Close must not race with them.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the grant cache at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("permission store path required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("open permission store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open permission store: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open permission store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaV1); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	err := db.QueryRow("SELECT version FROM schema_meta LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.Exec("INSERT INTO schema_meta (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version > schemaVersion:
		return fmt.Errorf("schema version %d is newer than supported %d", version, schemaVersion)
	}
	return nil
}

// Close releases the database handle. Closing twice is a no-op.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Granted returns the cached permissions of pluginName.
func (s *Store) Granted(ctx context.Context, pluginName string) ([]plugin.PermissionType, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT permission FROM grants WHERE plugin = ? ORDER BY permission", pluginName)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	var out []plugin.PermissionType
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		perm, parseErr := plugin.ParsePermissionType(raw)
		if parseErr != nil {
			slog.Warn("[permstore] skipping unknown cached permission", "plugin", pluginName, "permission", raw)
			continue
		}
		out = append(out, perm)
	}
	return out, rows.Err()
}

// Grant records permissions for pluginName. Existing grants are refreshed.
func (s *Store) Grant(ctx context.Context, pluginName string, permissions ...plugin.PermissionType) error {
	if s.db == nil {
		return ErrClosed
	}
	if len(permissions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grant: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	grantedAt := s.now().UTC().Format(time.RFC3339)
	for _, perm := range permissions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO grants (plugin, permission, granted_at) VALUES (?, ?, ?)
			 ON CONFLICT(plugin, permission) DO UPDATE SET granted_at = excluded.granted_at`,
			pluginName, string(perm), grantedAt); err != nil {
			return fmt.Errorf("insert grant %s: %w", perm, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grant: %w", err)
	}
	return nil
}

// Revoke forgets every grant of pluginName and reports how many were removed.
func (s *Store) Revoke(ctx context.Context, pluginName string) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM grants WHERE plugin = ?", pluginName)
	if err != nil {
		return 0, fmt.Errorf("revoke grants: %w", err)
	}
	return res.RowsAffected()
}

// List returns every cached grant ordered by plugin and permission.
func (s *Store) List(ctx context.Context) ([]Grant, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT plugin, permission, granted_at FROM grants ORDER BY plugin, permission")
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var out []Grant
	for rows.Next() {
		var g Grant
		var perm, grantedAt string
		if err := rows.Scan(&g.Plugin, &perm, &grantedAt); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		g.Permission = plugin.PermissionType(perm)
		if ts, parseErr := time.Parse(time.RFC3339, grantedAt); parseErr == nil {
			g.GrantedAt = ts
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
