// Package wikicache persists generated wiki structures in SQLite.
//
// Entries are keyed by owner, repository, repository type and language and
// hold the wiki as an opaque JSON document.
package wikicache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kratos06/deepwiki-open/internal/engine"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ErrInvalidKey is returned when a key has an empty owner or repository.
var ErrInvalidKey = errors.New("wikicache: owner and repo are required")

// ErrInvalidJSON is returned by Save for payloads that are not JSON.
var ErrInvalidJSON = errors.New("wikicache: payload is not valid JSON")

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds wiki cache configuration.
type Config struct {
	// Path is the SQLite database file.
	Path string
	// DefaultLanguage replaces an empty language in keys.
	DefaultLanguage string
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store implements engine.WikiCache.
type Store struct {
	db  *sql.DB
	cfg Config
}

var _ engine.WikiCache = (*Store)(nil)

// New creates the parent directory if needed, opens SQLite with WAL mode,
// and runs migrations.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("wikicache: database path is required")
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("wikicache: create data dir: %w", err)
	}

	db, err := openDB("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("wikicache: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("wikicache: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("wikicache: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS wiki_cache (
			owner      TEXT NOT NULL,
			repo       TEXT NOT NULL,
			repo_type  TEXT NOT NULL,
			language   TEXT NOT NULL,
			data       TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (owner, repo, repo_type, language)
		);
	`)
	return err
}

// ─── Operations ──────────────────────────────────────────────────────────────

func (s *Store) normalize(key engine.WikiKey) (engine.WikiKey, error) {
	if key.Owner == "" || key.Repo == "" {
		return key, ErrInvalidKey
	}
	if key.RepoType == "" {
		key.RepoType = "github"
	}
	if key.Language == "" {
		key.Language = s.cfg.DefaultLanguage
	}
	return key, nil
}

// Read returns the cached document for key and whether it exists.
func (s *Store) Read(ctx context.Context, key engine.WikiKey) ([]byte, bool, error) {
	key, err := s.normalize(key)
	if err != nil {
		return nil, false, err
	}
	var data string
	err = s.db.QueryRowContext(ctx,
		`SELECT data FROM wiki_cache WHERE owner = ? AND repo = ? AND repo_type = ? AND language = ?`,
		key.Owner, key.Repo, key.RepoType, key.Language,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("wikicache: read: %w", err)
	}
	return []byte(data), true, nil
}

// Save stores data under key, replacing any previous entry.
func (s *Store) Save(ctx context.Context, key engine.WikiKey, data []byte) error {
	key, err := s.normalize(key)
	if err != nil {
		return err
	}
	if !json.Valid(data) {
		return ErrInvalidJSON
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO wiki_cache (owner, repo, repo_type, language, data, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (owner, repo, repo_type, language)
		 DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key.Owner, key.Repo, key.RepoType, key.Language, string(data), Now(),
	)
	if err != nil {
		return fmt.Errorf("wikicache: save: %w", err)
	}
	return nil
}

// Delete removes the entry for key and reports whether one existed.
func (s *Store) Delete(ctx context.Context, key engine.WikiKey) (bool, error) {
	key, err := s.normalize(key)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM wiki_cache WHERE owner = ? AND repo = ? AND repo_type = ? AND language = ?`,
		key.Owner, key.Repo, key.RepoType, key.Language,
	)
	if err != nil {
		return false, fmt.Errorf("wikicache: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("wikicache: delete: %w", err)
	}
	return n > 0, nil
}

// List returns every entry, most recently updated first.
func (s *Store) List(ctx context.Context) ([]engine.WikiEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner, repo, repo_type, language, length(data), updated_at
		 FROM wiki_cache ORDER BY updated_at DESC, owner, repo`)
	if err != nil {
		return nil, fmt.Errorf("wikicache: list: %w", err)
	}
	defer rows.Close()

	entries := []engine.WikiEntry{}
	for rows.Next() {
		var e engine.WikiEntry
		if err := rows.Scan(&e.Owner, &e.Repo, &e.RepoType, &e.Language, &e.Size, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("wikicache: list: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("wikicache: list: %w", err)
	}
	return entries, nil
}

// Now returns the current time formatted for SQLite.
func Now() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05")
}
