package chunk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestFileName is the manifest file inside a chunk directory.
const ManifestFileName = "manifest.json"

// Entry records where a committed chunk came from.
type Entry struct {
	FirstRecord int64     `json:"first_record"`
	Records     int       `json:"records"`
	Source      string    `json:"source,omitempty"`
	EndOffset   int64     `json:"end_offset"` // input byte offset after the chunk's last line, -1 if unknown
	RunID       string    `json:"run_id,omitempty"`
	CommittedAt time.Time `json:"committed_at"`
}

// Manifest is the persisted provenance of a chunk directory.
type Manifest struct {
	ChunkSize int           `json:"chunk_size"`
	Chunks    map[int]Entry `json:"chunks"`
}

func loadManifest(dir string, chunkSize int) (*Manifest, error) {
	m := &Manifest{ChunkSize: chunkSize, Chunks: make(map[int]Entry)}
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.ChunkSize != chunkSize {
		return nil, fmt.Errorf("manifest chunk size %d, store chunk size %d", m.ChunkSize, chunkSize)
	}
	if m.Chunks == nil {
		m.Chunks = make(map[int]Entry)
	}
	return m, nil
}

// save writes the manifest through a synced temp file and rename.
func (m *Manifest) save(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, ManifestFileName)
	tmp := path + tmpSuffix
	if err := writeSynced(tmp, data); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return syncDir(dir)
}
