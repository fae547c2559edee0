package corpus

import (
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// OpenInput opens an evaluation stream. Files ending in .zst are
// decompressed on the fly; plain files are returned as *os.File so Build
// can seek past committed chunks.
func OpenInput(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &zstdFile{dec: dec, f: f}, nil
}

type zstdFile struct {
	dec *zstd.Decoder
	f   *os.File
}

func (z *zstdFile) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstdFile) Close() error {
	z.dec.Close()
	return z.f.Close()
}
