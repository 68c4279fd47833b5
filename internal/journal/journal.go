// Package journal records applied patches in a SQLite database so they can be
// listed later with `applypatch history`.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/asynkron/applypatch/internal/logging"
	"github.com/asynkron/applypatch/pkg/patch"
)

// ErrNotFound is returned by Get for unknown entry IDs.
var ErrNotFound = errors.New("journal entry not found")

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS patches (
	id          TEXT PRIMARY KEY,
	created_at  INTEGER NOT NULL,
	source      TEXT NOT NULL,
	root        TEXT NOT NULL,
	operations  INTEGER NOT NULL,
	checksum    TEXT NOT NULL,
	body        TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS patch_files (
	patch_id  TEXT NOT NULL REFERENCES patches(id) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	status    TEXT NOT NULL,
	path      TEXT NOT NULL,
	from_path TEXT NOT NULL DEFAULT '',
	checksum  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (patch_id, position)
)`,
	`CREATE INDEX IF NOT EXISTS idx_patches_created_at ON patches(created_at)`,
}

// File is one committed file result.
type File struct {
	Status   string `json:"status"`
	Path     string `json:"path"`
	From     string `json:"from,omitempty"`
	Checksum string `json:"checksum,omitempty"`
}

// Entry is one applied patch.
type Entry struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Source     string    `json:"source"`
	Root       string    `json:"root"`
	Operations int       `json:"operations"`
	Checksum   string    `json:"checksum"`
	Patch      string    `json:"patch,omitempty"`
	Files      []File    `json:"files"`
}

// NewEntry builds an entry for a committed patch.
func NewEntry(source, root, body string, operations int, results []patch.Result) Entry {
	files := make([]File, 0, len(results))
	for _, r := range results {
		files = append(files, File{Status: r.Status, Path: r.Path, From: r.From, Checksum: r.Checksum})
	}
	return Entry{
		Source:     source,
		Root:       root,
		Operations: operations,
		Checksum:   patch.Checksum(body),
		Patch:      body,
		Files:      files,
	}
}

// Journal is a handle on the journal database. It is safe for concurrent use.
type Journal struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time
}

// Open opens or creates the journal at path, creating parent directories.
func Open(path string, logger logging.Logger) (*Journal, error) {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
		}
	}

	logger.Debug(context.Background(), "journal opened", logging.Field("path", path))
	return &Journal{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record stores entry, assigning its ID and timestamp when unset.
func (j *Journal) Record(ctx context.Context, entry Entry) (Entry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = j.now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO patches (id, created_at, source, root, operations, checksum, body) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.CreatedAt.UnixNano(), entry.Source, entry.Root, entry.Operations, entry.Checksum, entry.Patch)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to insert patch: %w", err)
	}
	for i, f := range entry.Files {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO patch_files (patch_id, position, status, path, from_path, checksum) VALUES (?, ?, ?, ?, ?, ?)`,
			entry.ID, i, f.Status, f.Path, f.From, f.Checksum)
		if err != nil {
			return Entry{}, fmt.Errorf("failed to insert patch file: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("failed to commit journal entry: %w", err)
	}

	j.logger.Debug(ctx, "patch recorded", logging.Field("id", entry.ID), logging.Field("files", len(entry.Files)))
	return entry, nil
}

// List returns up to limit entries, newest first, without patch bodies.
// A limit <= 0 returns every entry.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, created_at, source, root, operations, checksum FROM patches ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &created, &e.Source, &e.Root, &e.Operations, &e.Checksum); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list journal: %w", err)
	}

	for i := range entries {
		files, err := j.files(ctx, entries[i].ID)
		if err != nil {
			return nil, err
		}
		entries[i].Files = files
	}
	return entries, nil
}

// Get returns a single entry including its patch body.
func (j *Journal) Get(ctx context.Context, id string) (Entry, error) {
	var e Entry
	var created int64
	err := j.db.QueryRowContext(ctx,
		`SELECT id, created_at, source, root, operations, checksum, body FROM patches WHERE id = ?`, id).
		Scan(&e.ID, &created, &e.Source, &e.Root, &e.Operations, &e.Checksum, &e.Patch)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to load journal entry: %w", err)
	}
	e.CreatedAt = time.Unix(0, created).UTC()
	if e.Files, err = j.files(ctx, e.ID); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (j *Journal) files(ctx context.Context, id string) ([]File, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT status, path, from_path, checksum FROM patch_files WHERE patch_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load patch files: %w", err)
	}
	defer rows.Close()

	files := []File{}
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.Status, &f.Path, &f.From, &f.Checksum); err != nil {
			return nil, fmt.Errorf("failed to scan patch file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
