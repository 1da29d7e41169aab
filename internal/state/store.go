// Package state persists the fingerprints that make sync incremental.
//
// One Store exists per sync target (a profile data directory or a project
// root). It holds two independent namespaces:
//   - note_states: note id -> fingerprint of the last content pushed or pulled
//   - model_states: model name -> fingerprint of the last structure pushed or pulled
//
// The store is backed by an embedded SQLite database in WAL mode. Schema
// changes are applied with goose migrations embedded in the binary, so an
// older database is upgraded (and a damaged schema recreated) on Open.
//
// Writes are serialized by the Store itself; callers may share one
// instance between goroutines. Two processes writing the same database at
// the same time is not supported.
package state

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// Filename is the database file name inside a target directory.
const Filename = ".anki_vibe.db"

//go:embed migrations/*.sql
var migrations embed.FS

// ErrCorrupt is returned by Open when the database file fails its
// integrity check. The run must stop rather than continue from an empty
// baseline.
var ErrCorrupt = errors.New("state database is corrupt")

// Store is the durable note/model fingerprint store.
type Store struct {
	conn   *sql.DB
	path   string
	mu     sync.RWMutex // guards conn; writes are serialised
	logger zerolog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the state database at path.
//
// Parent directories are created. Pending migrations are applied. When the
// database is empty and a legacy JSON state file sits next to it, that file
// is imported once.
//
// The caller MUST call Close() when done.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping state database: %w", err)
	}

	s := newStore(conn, path, logger)

	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, classifyOpenError(fmt.Errorf("failed to enable WAL mode: %w", err))
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if err := s.checkIntegrity(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.importLegacy(ctx, filepath.Join(dir, LegacyFilename)); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

func newStore(conn *sql.DB, path string, logger zerolog.Logger) *Store {
	return &Store{
		conn:   conn,
		path:   path,
		logger: logger.With().Str("component", "state").Logger(),
		now:    time.Now,
	}
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) checkIntegrity(ctx context.Context) error {
	var result string
	if err := s.conn.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return classifyOpenError(fmt.Errorf("failed to check state database: %w", err))
	}
	if result != "ok" {
		return fmt.Errorf("%w: %s (%s)", ErrCorrupt, s.path, result)
	}
	return nil
}

// classifyOpenError maps SQLite's "not a database" family of failures to
// ErrCorrupt so the command layer can print a targeted hint.
func classifyOpenError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not a database") || strings.Contains(msg, "malformed") {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return err
}

func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.conn, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to migrate state database: %w", err)
	}
	for _, r := range results {
		s.logger.Debug().Str("migration", r.Source.Path).Dur("took", r.Duration).Msg("applied migration")
	}
	return nil
}

// Close releases the database. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn().Err(err).Msg("failed to checkpoint WAL")
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close state database: %w", err)
	}

	s.conn = nil
	return nil
}

// NoteHash returns the stored fingerprint for a note id.
func (s *Store) NoteHash(id int64) (string, bool, error) {
	return s.NoteHashContext(context.Background(), id)
}

// NoteHashContext returns the stored fingerprint for a note id. The bool
// is false when no entry exists.
func (s *Store) NoteHashContext(ctx context.Context, id int64) (string, bool, error) {
	return s.lookup(ctx, "SELECT hash FROM note_states WHERE note_id = ?", id)
}

// SetNoteHash upserts the fingerprint for a note id.
func (s *Store) SetNoteHash(id int64, hash string) error {
	return s.SetNoteHashContext(context.Background(), id, hash)
}

// SetNoteHashContext upserts the fingerprint for a note id and refreshes
// its timestamp.
func (s *Store) SetNoteHashContext(ctx context.Context, id int64, hash string) error {
	query := `
		INSERT INTO note_states (note_id, hash, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(note_id) DO UPDATE SET
			hash = excluded.hash,
			updated_at = excluded.updated_at
	`
	if err := s.exec(ctx, query, id, hash, s.now().UnixNano()); err != nil {
		return fmt.Errorf("failed to set hash for note %d: %w", id, err)
	}
	return nil
}

// ModelHash returns the stored structure fingerprint for a model name.
func (s *Store) ModelHash(name string) (string, bool, error) {
	return s.ModelHashContext(context.Background(), name)
}

// ModelHashContext returns the stored structure fingerprint for a model
// name. The bool is false when no entry exists.
func (s *Store) ModelHashContext(ctx context.Context, name string) (string, bool, error) {
	return s.lookup(ctx, "SELECT hash FROM model_states WHERE model_name = ?", name)
}

// SetModelHash upserts the structure fingerprint for a model name.
func (s *Store) SetModelHash(name, hash string) error {
	return s.SetModelHashContext(context.Background(), name, hash)
}

// SetModelHashContext upserts the structure fingerprint for a model name.
func (s *Store) SetModelHashContext(ctx context.Context, name, hash string) error {
	query := `
		INSERT INTO model_states (model_name, hash, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(model_name) DO UPDATE SET
			hash = excluded.hash,
			updated_at = excluded.updated_at
	`
	if err := s.exec(ctx, query, name, hash, s.now().UnixNano()); err != nil {
		return fmt.Errorf("failed to set hash for model %q: %w", name, err)
	}
	return nil
}

// Stats summarizes the store contents.
type Stats struct {
	Notes  int
	Models int
}

// StatsContext counts entries in both namespaces.
func (s *Store) StatsContext(ctx context.Context) (Stats, error) {
	return s.count(ctx, 0)
}

// ChangedSinceContext counts entries whose fingerprint was written at or
// after t.
func (s *Store) ChangedSinceContext(ctx context.Context, t time.Time) (Stats, error) {
	return s.count(ctx, t.UnixNano())
}

func (s *Store) count(ctx context.Context, since int64) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.conn == nil {
		return Stats{}, errClosed
	}
	var st Stats
	if err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM note_states WHERE updated_at >= ?", since).Scan(&st.Notes); err != nil {
		return Stats{}, fmt.Errorf("failed to count note states: %w", err)
	}
	if err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM model_states WHERE updated_at >= ?", since).Scan(&st.Models); err != nil {
		return Stats{}, fmt.Errorf("failed to count model states: %w", err)
	}
	return st, nil
}

var errClosed = errors.New("state database is closed")

func (s *Store) lookup(ctx context.Context, query string, key any) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.conn == nil {
		return "", false, errClosed
	}
	var hash string
	err := s.conn.QueryRowContext(ctx, query, key).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read state for %v: %w", key, err)
	}
	return hash, true, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return errClosed
	}
	_, err := s.conn.ExecContext(ctx, query, args...)
	return err
}
