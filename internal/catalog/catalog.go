// Package catalog records operation history and known archives in a local
// SQLite database. The catalog is advisory metadata: losing it never loses
// configuration data, only history.
package catalog

import (
	"database/sql"
	"fmt"
	"time"

	"slicerbak/internal/catalog/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Operation statuses recorded in the operations table.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Operation is one recorded save/restore/compare/push/pull run.
type Operation struct {
	ID         string
	Kind       string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Detail     string
}

// Archive is a known archive file and its manifest summary.
type Archive struct {
	ID        string
	Path      string
	Checksum  string
	FileCount int
	TotalSize int64
	CreatedAt time.Time
}

// Catalog wraps the SQLite connection. Open runs pending migrations.
type Catalog struct {
	db    *sql.DB
	clock Clock
	ids   IDGenerator
}

// Open opens (or creates) the catalog database at path and migrates it to
// the latest schema. path can be ":memory:" for tests.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w", path, err)
	}

	// SQLite defaults foreign keys to OFF for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating catalog: %w", err)
	}

	return &Catalog{db: db, clock: RealClock{}, ids: UUIDGenerator{}}, nil
}

// WithClock overrides the catalog's time source. Test hook.
func (c *Catalog) WithClock(clock Clock) *Catalog {
	c.clock = clock
	return c
}

// WithIDGenerator overrides the catalog's ID source. Test hook.
func (c *Catalog) WithIDGenerator(ids IDGenerator) *Catalog {
	c.ids = ids
	return c
}

// BeginOperation records the start of an operation and returns its ID.
func (c *Catalog) BeginOperation(kind, detail string) (string, error) {
	id := c.ids.New()
	_, err := c.db.Exec(
		`INSERT INTO operations (id, kind, started_at, status, detail) VALUES (?, ?, ?, ?, ?)`,
		id, kind, c.clock.Now(), StatusRunning, detail,
	)
	if err != nil {
		return "", fmt.Errorf("recording operation start: %w", err)
	}
	return id, nil
}

// FinishOperation marks an operation as finished with the given status.
func (c *Catalog) FinishOperation(id, status, detail string) error {
	_, err := c.db.Exec(
		`UPDATE operations SET finished_at = ?, status = ?, detail = ? WHERE id = ?`,
		c.clock.Now(), status, detail, id,
	)
	if err != nil {
		return fmt.Errorf("recording operation finish: %w", err)
	}
	return nil
}

// RecentOperations returns up to limit operations, most recent first.
func (c *Catalog) RecentOperations(limit int) ([]Operation, error) {
	rows, err := c.db.Query(
		`SELECT id, kind, started_at, finished_at, status, detail
		 FROM operations ORDER BY started_at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		var op Operation
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.Kind, &op.StartedAt, &finished, &op.Status, &op.Detail); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// RecordArchive upserts an archive record keyed by path. Re-saving over an
// existing archive path replaces its summary.
func (c *Catalog) RecordArchive(path, checksum string, fileCount int, totalSize int64, createdAt time.Time) error {
	_, err := c.db.Exec(
		`INSERT INTO archives (id, path, checksum, file_count, total_size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   checksum = excluded.checksum,
		   file_count = excluded.file_count,
		   total_size = excluded.total_size,
		   created_at = excluded.created_at`,
		c.ids.New(), path, checksum, fileCount, totalSize, createdAt,
	)
	if err != nil {
		return fmt.Errorf("recording archive: %w", err)
	}
	return nil
}

// Archives returns all known archives, most recent first.
func (c *Catalog) Archives() ([]Archive, error) {
	rows, err := c.db.Query(
		`SELECT id, path, checksum, file_count, total_size, created_at
		 FROM archives ORDER BY created_at DESC, path`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}
	defer rows.Close()

	var archives []Archive
	for rows.Next() {
		var a Archive
		if err := rows.Scan(&a.ID, &a.Path, &a.Checksum, &a.FileCount, &a.TotalSize, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning archive: %w", err)
		}
		archives = append(archives, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}
	return archives, nil
}

// CheckMigrations verifies the catalog schema is up to date.
func (c *Catalog) CheckMigrations() error {
	return migrations.CheckStatus(c.db)
}

// Close closes the underlying database connection.
func (c *Catalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
