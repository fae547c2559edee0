package chunk_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/freeeve/chesscnn/internal/chunk"
	"github.com/freeeve/chesscnn/internal/position"
)

func makePairs(t *testing.T, n int, scoreBase int32) []chunk.Pair {
	t.Helper()
	board, err := position.Encode("4k3/8/8/8/8/8/4P3/4K3 w - - 0 1")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	pairs := make([]chunk.Pair, n)
	for i := range pairs {
		pairs[i] = chunk.Pair{Board: board, Score: scoreBase + int32(i)}
	}
	return pairs
}

func openStore(t *testing.T, dataDir string, chunkSize int) *chunk.Store {
	t.Helper()
	s, err := chunk.Open(chunk.Config{DataDir: dataDir, ChunkSize: chunkSize})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreLayout(t *testing.T) {
	dataDir := t.TempDir()
	s := openStore(t, dataDir, 1000)

	want := filepath.Join(dataDir, "1000chunks")
	if s.Dir() != want {
		t.Errorf("Dir() = %q, want %q", s.Dir(), want)
	}
	if s.Path(3) != filepath.Join(want, "3.chunk") {
		t.Errorf("Path(3) = %q", s.Path(3))
	}
	if fi, err := os.Stat(want); err != nil || !fi.IsDir() {
		t.Errorf("chunk directory not created: %v", err)
	}
}

func TestCommitLoad(t *testing.T) {
	s := openStore(t, t.TempDir(), 4)

	if s.Exists(1) {
		t.Fatal("Exists(1) before commit")
	}
	pairs := makePairs(t, 4, 100)
	if err := s.Commit(1, pairs); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !s.Exists(1) {
		t.Fatal("Exists(1) = false after commit")
	}

	got, err := s.Load(1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("Load returned %d pairs, want 4", len(got))
	}
	for i := range got {
		if got[i] != pairs[i] {
			t.Errorf("pair %d = %+v, want %+v", i, got[i].Score, pairs[i].Score)
		}
	}

	// no temp file left behind
	if _, err := os.Stat(s.Path(1) + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file still present: %v", err)
	}
}

func TestCommitRejectsWrongSize(t *testing.T) {
	s := openStore(t, t.TempDir(), 4)

	if err := s.Commit(1, makePairs(t, 3, 0)); err == nil {
		t.Error("Commit with 3 pairs: expected error")
	}
	if err := s.Commit(1, makePairs(t, 5, 0)); err == nil {
		t.Error("Commit with 5 pairs: expected error")
	}
	if err := s.Commit(0, makePairs(t, 4, 0)); err == nil {
		t.Error("Commit index 0: expected error")
	}
	if s.Exists(1) {
		t.Error("rejected commit left a chunk behind")
	}
}

func TestCommitIsImmutable(t *testing.T) {
	s := openStore(t, t.TempDir(), 2)

	if err := s.Commit(1, makePairs(t, 2, 1)); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	err := s.Commit(1, makePairs(t, 2, 50))
	if !errors.Is(err, chunk.ErrChunkExists) {
		t.Fatalf("second Commit = %v, want ErrChunkExists", err)
	}
	got, err := s.Load(1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got[0].Score != 1 {
		t.Errorf("chunk was overwritten: score %d", got[0].Score)
	}
}

func TestLoadMissing(t *testing.T) {
	s := openStore(t, t.TempDir(), 2)

	_, err := s.Load(5)
	var nf *chunk.ChunkNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Load(5) = %v, want ChunkNotFoundError", err)
	}
	if nf.Index != 5 {
		t.Errorf("Index = %d, want 5", nf.Index)
	}
}

func TestLoadCorrupt(t *testing.T) {
	s := openStore(t, t.TempDir(), 2)
	if err := s.Commit(1, makePairs(t, 2, 0)); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	data, err := os.ReadFile(s.Path(1))
	if err != nil {
		t.Fatal(err)
	}
	data[0] = 'X'
	if err := os.WriteFile(s.Path(1), data, 0644); err != nil {
		t.Fatal(err)
	}

	_, err = s.Load(1)
	var ioErr *chunk.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("Load = %v, want IOError", err)
	}
	if !errors.Is(err, chunk.ErrCorruptChunk) {
		t.Errorf("Load = %v, want ErrCorruptChunk", err)
	}
}

func TestLoadRejectsMisplacedChunk(t *testing.T) {
	s := openStore(t, t.TempDir(), 2)
	if err := s.Commit(1, makePairs(t, 2, 0)); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := os.Rename(s.Path(1), s.Path(2)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(2); !errors.Is(err, chunk.ErrCorruptChunk) {
		t.Errorf("Load(2) = %v, want ErrCorruptChunk", err)
	}
}

func TestTempFilesInvisibleAndSwept(t *testing.T) {
	dataDir := t.TempDir()
	dir := chunk.DirFor(dataDir, 2)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	tmp := filepath.Join(dir, "1.chunk.tmp")
	if err := os.WriteFile(tmp, []byte("partial"), 0644); err != nil {
		t.Fatal(err)
	}

	ro, err := chunk.Open(chunk.Config{DataDir: dataDir, ChunkSize: 2, ReadOnly: true})
	if err != nil {
		t.Fatalf("Open read-only: %v", err)
	}
	if ro.Exists(1) {
		t.Error("temp file visible as committed chunk")
	}
	ro.Close()
	if _, err := os.Stat(tmp); err != nil {
		t.Error("read-only open removed temp file")
	}

	openStore(t, dataDir, 2)
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Errorf("temp file not swept: %v", err)
	}
}

func TestReadOnly(t *testing.T) {
	dataDir := t.TempDir()
	s, err := chunk.Open(chunk.Config{DataDir: dataDir, ChunkSize: 2, ReadOnly: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(s.Dir()); !os.IsNotExist(err) {
		t.Error("read-only open created the chunk directory")
	}
	if err := s.Commit(1, makePairs(t, 2, 0)); !errors.Is(err, chunk.ErrReadOnly) {
		t.Errorf("Commit = %v, want ErrReadOnly", err)
	}
	var nf *chunk.ChunkNotFoundError
	if _, err := s.Load(1); !errors.As(err, &nf) {
		t.Errorf("Load = %v, want ChunkNotFoundError", err)
	}
}

func TestCommitted(t *testing.T) {
	s := openStore(t, t.TempDir(), 1)
	for _, i := range []int{3, 1, 10} {
		if err := s.Commit(i, makePairs(t, 1, 0)); err != nil {
			t.Fatalf("Commit(%d): %v", i, err)
		}
	}
	os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), nil, 0644)

	got, err := s.Committed()
	if err != nil {
		t.Fatalf("Committed: %v", err)
	}
	want := []int{1, 3, 10}
	if len(got) != len(want) {
		t.Fatalf("Committed = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Committed = %v, want %v", got, want)
		}
	}
}

func TestManifestPersists(t *testing.T) {
	dataDir := t.TempDir()
	s := openStore(t, dataDir, 2)

	entry := chunk.Entry{
		FirstRecord: 2,
		Records:     2,
		Source:      "evals.jsonl",
		EndOffset:   1234,
		RunID:       "run-1",
		CommittedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := s.Record(2, entry); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), chunk.ManifestFileName+".tmp")); !os.IsNotExist(err) {
		t.Errorf("manifest temp file left behind: %v", err)
	}
	s.Close()

	s2 := openStore(t, dataDir, 2)
	got, ok := s2.Entry(2)
	if !ok {
		t.Fatal("entry missing after reopen")
	}
	if got != entry {
		t.Errorf("Entry = %+v, want %+v", got, entry)
	}
	if _, ok := s2.Entry(1); ok {
		t.Error("unexpected entry for chunk 1")
	}
}

func TestRecordReportsWriteFailure(t *testing.T) {
	s := openStore(t, t.TempDir(), 2)
	if err := os.RemoveAll(s.Dir()); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(1, chunk.Entry{Records: 2}); err == nil {
		t.Error("expected error saving manifest into a missing directory")
	}
}

func TestManifestChunkSizeMismatch(t *testing.T) {
	dataDir := t.TempDir()
	dir := chunk.DirFor(dataDir, 2)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"chunk_size": 3, "chunks": {}}`
	if err := os.WriteFile(filepath.Join(dir, chunk.ManifestFileName), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := chunk.Open(chunk.Config{DataDir: dataDir, ChunkSize: 2}); err == nil {
		t.Error("expected chunk size mismatch error")
	}
}

func TestLock(t *testing.T) {
	s := openStore(t, t.TempDir(), 2)

	if s.IsLocked() {
		t.Fatal("locked before AcquireLock")
	}
	if err := s.AcquireLock(); err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if !s.IsLocked() {
		t.Error("IsLocked = false after AcquireLock")
	}
	err := s.AcquireLock()
	if !errors.Is(err, chunk.ErrLocked) {
		t.Errorf("second AcquireLock = %v, want ErrLocked", err)
	}
	if err == nil || !strings.Contains(err.Error(), "pid=") {
		t.Errorf("lock error should name the holder: %v", err)
	}
	if err := s.ReleaseLock(); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
	if err := s.AcquireLock(); err != nil {
		t.Errorf("AcquireLock after release: %v", err)
	}
	s.ReleaseLock()
}

func TestVerify(t *testing.T) {
	s := openStore(t, t.TempDir(), 2)
	for i := 1; i <= 3; i++ {
		if err := s.Commit(i, makePairs(t, 2, 0)); err != nil {
			t.Fatalf("Commit(%d): %v", i, err)
		}
	}

	ok, err := s.Verify(3)
	if err != nil || ok != 3 {
		t.Fatalf("Verify(3) = %d, %v", ok, err)
	}

	os.WriteFile(s.Path(2), []byte("garbage that is longer than a header......"), 0644)
	ok, err = s.Verify(4)
	if ok != 2 {
		t.Errorf("Verify ok = %d, want 2", ok)
	}
	if err == nil {
		t.Fatal("Verify: expected error")
	}
	if !errors.Is(err, chunk.ErrCorruptChunk) {
		t.Errorf("Verify error should include corrupt chunk 2: %v", err)
	}
	var nf *chunk.ChunkNotFoundError
	if !errors.As(err, &nf) || nf.Index != 4 {
		t.Errorf("Verify error should include missing chunk 4: %v", err)
	}
}
