package chunk

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	fileExt      = ".chunk"
	tmpSuffix    = ".tmp"
	lockFileName = ".lock"
)

// Config configures a Store.
type Config struct {
	DataDir     string // root data directory; chunks live in <DataDir>/<ChunkSize>chunks
	ChunkSize   int
	ReadOnly    bool   // never create directories or write files
	Compression string // zstd level: "fastest", "default", "better", "best" (default "default")
}

// Store manages the chunk files of one corpus.
type Store struct {
	dir       string
	chunkSize int
	readOnly  bool

	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
	manifest *Manifest

	logFunc func(format string, args ...any)
}

// DirFor returns the chunk directory for a data root and chunk size.
func DirFor(dataDir string, chunkSize int) string {
	return filepath.Join(dataDir, strconv.Itoa(chunkSize)+"chunks")
}

// Open opens (and unless read-only, creates) the chunk directory for
// cfg.ChunkSize. Leftover temp files from interrupted commits are removed.
func Open(cfg Config) (*Store, error) {
	if cfg.ChunkSize < 1 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.Compression == "" {
		cfg.Compression = "default"
	}
	ok, level := zstd.EncoderLevelFromString(cfg.Compression)
	if !ok {
		return nil, fmt.Errorf("unknown compression level %q", cfg.Compression)
	}

	dir := DirFor(cfg.DataDir, cfg.ChunkSize)
	if !cfg.ReadOnly {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create chunk dir: %w", err)
		}
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dir:       dir,
		chunkSize: cfg.ChunkSize,
		readOnly:  cfg.ReadOnly,
		decoder:   decoder,
	}

	if !cfg.ReadOnly {
		s.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		if err != nil {
			decoder.Close()
			return nil, err
		}
		if err := s.removeTempFiles(); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.manifest, err = loadManifest(dir, cfg.ChunkSize)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// SetLogger sets the logging function
func (s *Store) SetLogger(f func(format string, args ...any)) {
	s.logFunc = f
}

func (s *Store) log(format string, args ...any) {
	if s.logFunc != nil {
		s.logFunc(format, args...)
	}
}

// Dir returns the chunk directory.
func (s *Store) Dir() string { return s.dir }

// ChunkSize returns the number of pairs per chunk.
func (s *Store) ChunkSize() int { return s.chunkSize }

// Path returns the file path of a chunk.
func (s *Store) Path(index int) string {
	return filepath.Join(s.dir, strconv.Itoa(index)+fileExt)
}

// Exists reports whether a committed chunk file is present for index.
func (s *Store) Exists(index int) bool {
	if index < 1 {
		return false
	}
	fi, err := os.Stat(s.Path(index))
	return err == nil && fi.Mode().IsRegular() && fi.Size() >= HeaderSize
}

// Commit durably writes exactly ChunkSize pairs as chunk index.
func (s *Store) Commit(index int, pairs []Pair) error {
	if index < 1 {
		return fmt.Errorf("commit chunk %d: index must be >= 1", index)
	}
	if len(pairs) != s.chunkSize {
		return fmt.Errorf("commit chunk %d: got %d pairs, want %d", index, len(pairs), s.chunkSize)
	}
	if s.readOnly {
		return &IOError{Op: "commit", Index: index, Err: ErrReadOnly}
	}
	if s.Exists(index) {
		return fmt.Errorf("commit chunk %d: %w", index, ErrChunkExists)
	}

	path := s.Path(index)
	tmpPath := path + tmpSuffix
	data := marshalChunk(index, s.chunkSize, pairs, s.encoder)

	if err := writeSynced(tmpPath, data); err != nil {
		os.Remove(tmpPath)
		return &IOError{Op: "commit", Index: index, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &IOError{Op: "commit", Index: index, Err: err}
	}
	if err := syncDir(s.dir); err != nil {
		return &IOError{Op: "commit", Index: index, Err: err}
	}

	s.log("committed chunk %d: %d pairs (%.1fKB)", index, len(pairs), float64(len(data))/1024)
	return nil
}

// Load reads and validates a committed chunk.
func (s *Store) Load(index int) ([]Pair, error) {
	path := s.Path(index)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &ChunkNotFoundError{Index: index, Path: path}
	}
	if err != nil {
		return nil, &IOError{Op: "load", Index: index, Err: err}
	}

	h, pairs, err := unmarshalChunk(data, s.decoder)
	if err != nil {
		return nil, &IOError{Op: "load", Index: index, Err: fmt.Errorf("%w: %v", ErrCorruptChunk, err)}
	}
	if int(h.Index) != index || int(h.ChunkSize) != s.chunkSize || int(h.Count) != s.chunkSize {
		return nil, &IOError{Op: "load", Index: index, Err: fmt.Errorf("%w: header index=%d chunk_size=%d count=%d",
			ErrCorruptChunk, h.Index, h.ChunkSize, h.Count)}
	}
	return pairs, nil
}

// Committed returns the indices of all committed chunks in ascending order.
func (s *Store) Committed() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var indices []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSuffix(name, fileExt))
		if err != nil || idx < 1 {
			continue
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices, nil
}

// Entry returns the manifest entry of a chunk.
func (s *Store) Entry(index int) (Entry, bool) {
	e, ok := s.manifest.Chunks[index]
	return e, ok
}

// Record stores the manifest entry of a committed chunk.
func (s *Store) Record(index int, e Entry) error {
	if s.readOnly {
		return ErrReadOnly
	}
	s.manifest.Chunks[index] = e
	if err := s.manifest.save(s.dir); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	return nil
}

// Close releases the compression resources.
func (s *Store) Close() error {
	var err error
	if s.encoder != nil {
		err = s.encoder.Close()
		s.encoder = nil
	}
	if s.decoder != nil {
		s.decoder.Close()
		s.decoder = nil
	}
	return err
}

func (s *Store) removeTempFiles() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), tmpSuffix) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale temp file: %w", err)
		}
		s.log("removed stale temp file %s", path)
	}
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
