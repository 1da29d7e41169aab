package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

// openTestStore opens a store in a fresh temporary directory.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile", Filename)
	s, err := Open(context.Background(), path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	s := openTestStore(t)

	if _, err := os.Stat(s.Path()); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
}

func TestNoteHash_Absent(t *testing.T) {
	s := openTestStore(t)

	hash, ok, err := s.NoteHash(42)
	if err != nil {
		t.Fatalf("NoteHash() failed: %v", err)
	}
	if ok || hash != "" {
		t.Errorf("NoteHash() = (%q, %v), want absent", hash, ok)
	}
}

func TestSetNoteHash_Upsert(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetNoteHash(555, "first"); err != nil {
		t.Fatalf("SetNoteHash() failed: %v", err)
	}
	if err := s.SetNoteHash(555, "second"); err != nil {
		t.Fatalf("SetNoteHash() overwrite failed: %v", err)
	}

	hash, ok, err := s.NoteHash(555)
	if err != nil {
		t.Fatalf("NoteHash() failed: %v", err)
	}
	if !ok || hash != "second" {
		t.Errorf("NoteHash() = (%q, %v), want (second, true)", hash, ok)
	}

	st, err := s.StatsContext(context.Background())
	if err != nil {
		t.Fatalf("StatsContext() failed: %v", err)
	}
	if st.Notes != 1 {
		t.Errorf("Notes = %d, want 1 (upsert must not duplicate)", st.Notes)
	}
}

func TestModelHash_SeparateNamespace(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetModelHash("Basic", "m-hash"); err != nil {
		t.Fatalf("SetModelHash() failed: %v", err)
	}
	if err := s.SetNoteHash(1, "n-hash"); err != nil {
		t.Fatalf("SetNoteHash() failed: %v", err)
	}

	hash, ok, err := s.ModelHash("Basic")
	if err != nil || !ok || hash != "m-hash" {
		t.Errorf("ModelHash() = (%q, %v, %v), want (m-hash, true, nil)", hash, ok, err)
	}
	if _, ok, _ := s.ModelHash("1"); ok {
		t.Error("note entry leaked into model namespace")
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), Filename)
	ctx := context.Background()

	s, err := Open(ctx, path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s.SetNoteHash(7, "abc"); err != nil {
		t.Fatalf("SetNoteHash() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	s, err = Open(ctx, path, zerolog.Nop())
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s.Close()

	hash, ok, err := s.NoteHash(7)
	if err != nil || !ok || hash != "abc" {
		t.Errorf("NoteHash() after reopen = (%q, %v, %v)", hash, ok, err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	s := openTestStore(t)

	if err := s.Close(); err != nil {
		t.Fatalf("first Close() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
	if err := s.SetNoteHash(1, "x"); err == nil {
		t.Error("SetNoteHash() after Close() should fail")
	}
}

func TestStore_ReadsDuringClose(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.SetNoteHashContext(ctx, 1, "h1"); err != nil {
		t.Fatalf("SetNoteHashContext() failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 400)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, _, err := s.NoteHashContext(ctx, 1); err != nil && !errors.Is(err, errClosed) {
					errs <- err
				}
				if _, err := s.StatsContext(ctx); err != nil && !errors.Is(err, errClosed) {
					errs <- err
				}
			}
		}()
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("read during Close() failed: %v", err)
	}
	if _, _, err := s.NoteHashContext(ctx, 1); !errors.Is(err, errClosed) {
		t.Errorf("NoteHashContext() after Close() error = %v, want errClosed", err)
	}
	if _, err := s.StatsContext(ctx); !errors.Is(err, errClosed) {
		t.Errorf("StatsContext() after Close() error = %v, want errClosed", err)
	}
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const workers = 5
	const perWorker = 50

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := int64(w*perWorker + i)
				if err := s.SetNoteHashContext(ctx, id, fmt.Sprintf("h%d", id)); err != nil {
					errs <- err
				}
				// Same key from every worker; last write wins.
				if err := s.SetModelHashContext(ctx, "Shared", "same"); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent write failed: %v", err)
	}

	st, err := s.StatsContext(ctx)
	if err != nil {
		t.Fatalf("StatsContext() failed: %v", err)
	}
	if diff := cmp.Diff(Stats{Notes: workers * perWorker, Models: 1}, st); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
}

func TestChangedSince(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	if err := s.SetNoteHash(1, "old"); err != nil {
		t.Fatalf("SetNoteHash() failed: %v", err)
	}

	s.now = func() time.Time { return base.Add(48 * time.Hour) }
	if err := s.SetNoteHash(2, "new"); err != nil {
		t.Fatalf("SetNoteHash() failed: %v", err)
	}
	if err := s.SetModelHash("Basic", "new"); err != nil {
		t.Fatalf("SetModelHash() failed: %v", err)
	}

	got, err := s.ChangedSinceContext(ctx, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ChangedSinceContext() failed: %v", err)
	}
	if diff := cmp.Diff(Stats{Notes: 1, Models: 1}, got); diff != "" {
		t.Errorf("ChangedSince mismatch (-want +got):\n%s", diff)
	}
}

func TestOpen_ImportsLegacyState(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, LegacyFilename)
	content := `{"models": {"Basic": "m1"}, "notes": {"101": "n1", "102": "n2", "oops": "n3"}}`
	if err := os.WriteFile(legacy, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write legacy file: %v", err)
	}

	s, err := Open(context.Background(), filepath.Join(dir, Filename), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if hash, ok, _ := s.NoteHash(102); !ok || hash != "n2" {
		t.Errorf("NoteHash(102) = (%q, %v), want (n2, true)", hash, ok)
	}
	if hash, ok, _ := s.ModelHash("Basic"); !ok || hash != "m1" {
		t.Errorf("ModelHash(Basic) = (%q, %v), want (m1, true)", hash, ok)
	}
	if _, err := os.Stat(legacy); !os.IsNotExist(err) {
		t.Error("legacy file should be renamed after import")
	}
	if _, err := os.Stat(legacy + ".imported"); err != nil {
		t.Errorf("renamed legacy file missing: %v", err)
	}
}

func TestOpen_CorruptLegacyStateIgnored(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, LegacyFilename), []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write legacy file: %v", err)
	}

	s, err := Open(context.Background(), filepath.Join(dir, Filename), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	st, err := s.StatsContext(context.Background())
	if err != nil {
		t.Fatalf("StatsContext() failed: %v", err)
	}
	if st.Notes != 0 || st.Models != 0 {
		t.Errorf("Stats = %+v, want empty baseline", st)
	}
}

func TestOpen_CorruptDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), Filename)
	garbage := make([]byte, 4096)
	for i := range garbage {
		garbage[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, garbage, 0644); err != nil {
		t.Fatalf("failed to write garbage file: %v", err)
	}

	_, err := Open(context.Background(), path, zerolog.Nop())
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("Open() error = %v, want ErrCorrupt", err)
	}
}

func TestSetNoteHash_PropagatesStorageErrors(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() failed: %v", err)
	}
	defer conn.Close()

	s := newStore(conn, "mock.db", zerolog.Nop())
	diskFull := errors.New("database or disk is full")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO note_states")).
		WithArgs(int64(555), "abc", sqlmock.AnyArg()).
		WillReturnError(diskFull)

	err = s.SetNoteHash(555, "abc")
	if !errors.Is(err, diskFull) {
		t.Errorf("SetNoteHash() error = %v, want wrapped disk error", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestModelHash_PropagatesStorageErrors(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() failed: %v", err)
	}
	defer conn.Close()

	s := newStore(conn, "mock.db", zerolog.Nop())
	denied := errors.New("permission denied")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT hash FROM model_states")).
		WithArgs("Basic").
		WillReturnError(denied)

	if _, _, err := s.ModelHash("Basic"); !errors.Is(err, denied) {
		t.Errorf("ModelHash() error = %v, want wrapped permission error", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
