package chunk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/klauspost/compress/zstd"

	"github.com/freeeve/chesscnn/internal/position"
)

const (
	Magic      = "PCHK"
	Version    = 2
	HeaderSize = 32

	scoreSize = 4
)

// Pair is one encoded position and its label.
type Pair struct {
	Board position.Tensor
	Score int32
}

// Header is the fixed-size chunk file header.
type Header struct {
	Magic     [4]byte
	Version   uint16
	Flags     uint16
	Index     uint32
	ChunkSize uint32
	Count     uint32
	Checksum  uint32
	BodySize  uint64
}

func encodeHeader(h *Header) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	binary.LittleEndian.PutUint32(buf[8:12], h.Index)
	binary.LittleEndian.PutUint32(buf[12:16], h.ChunkSize)
	binary.LittleEndian.PutUint32(buf[16:20], h.Count)
	binary.LittleEndian.PutUint32(buf[20:24], h.Checksum)
	binary.LittleEndian.PutUint64(buf[24:32], h.BodySize)
	return buf
}

func decodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, errors.New("header too short")
	}
	h := &Header{}
	copy(h.Magic[:], buf[0:4])
	if string(h.Magic[:]) != Magic {
		return nil, fmt.Errorf("invalid magic: %q", h.Magic)
	}
	h.Version = binary.LittleEndian.Uint16(buf[4:6])
	if h.Version != Version {
		return nil, fmt.Errorf("unsupported version: %d", h.Version)
	}
	h.Flags = binary.LittleEndian.Uint16(buf[6:8])
	h.Index = binary.LittleEndian.Uint32(buf[8:12])
	h.ChunkSize = binary.LittleEndian.Uint32(buf[12:16])
	h.Count = binary.LittleEndian.Uint32(buf[16:20])
	h.Checksum = binary.LittleEndian.Uint32(buf[20:24])
	h.BodySize = binary.LittleEndian.Uint64(buf[24:32])
	return h, nil
}

// bodySize is the uncompressed body length of count pairs.
func bodySize(count int) uint64 {
	return uint64(count) * (position.Size + scoreSize)
}

// encodeBody stripes all boards first and all scores after them, which
// keeps the mostly-zero board bytes together for the compressor.
func encodeBody(pairs []Pair) []byte {
	n := len(pairs)
	body := make([]byte, n*position.Size+n*scoreSize)
	off := 0
	for i := range pairs {
		b := &pairs[i].Board
		for p := range b {
			for r := range b[p] {
				for f := range b[p][r] {
					body[off] = byte(b[p][r][f])
					off++
				}
			}
		}
	}
	for i := range pairs {
		binary.LittleEndian.PutUint32(body[off:off+scoreSize], uint32(pairs[i].Score))
		off += scoreSize
	}
	return body
}

func decodeBody(body []byte, count int) ([]Pair, error) {
	if want := count * (position.Size + scoreSize); len(body) != want {
		return nil, fmt.Errorf("body is %d bytes, want %d for %d pairs", len(body), want, count)
	}
	pairs := make([]Pair, count)
	off := 0
	for i := range pairs {
		b := &pairs[i].Board
		for p := range b {
			for r := range b[p] {
				for f := range b[p][r] {
					v := int8(body[off])
					if v < -1 || v > 1 {
						return nil, fmt.Errorf("pair %d: cell value %d out of range", i, v)
					}
					b[p][r][f] = v
					off++
				}
			}
		}
	}
	for i := range pairs {
		pairs[i].Score = int32(binary.LittleEndian.Uint32(body[off : off+scoreSize]))
		off += scoreSize
	}
	return pairs, nil
}

// marshalChunk builds the full file contents for a chunk.
func marshalChunk(index, chunkSize int, pairs []Pair, encoder *zstd.Encoder) []byte {
	body := encodeBody(pairs)
	h := &Header{
		Version:   Version,
		Index:     uint32(index),
		ChunkSize: uint32(chunkSize),
		Count:     uint32(len(pairs)),
		Checksum:  crc32.ChecksumIEEE(body),
		BodySize:  uint64(len(body)),
	}
	copy(h.Magic[:], Magic)
	out := encodeHeader(h)
	return encoder.EncodeAll(body, out)
}

// unmarshalChunk validates a chunk file's contents and decodes its pairs.
func unmarshalChunk(data []byte, decoder *zstd.Decoder) (*Header, []Pair, error) {
	h, err := decodeHeader(data)
	if err != nil {
		return nil, nil, err
	}
	if h.BodySize != bodySize(int(h.Count)) {
		return nil, nil, fmt.Errorf("header body size %d does not fit %d pairs", h.BodySize, h.Count)
	}
	body, err := decoder.DecodeAll(data[HeaderSize:], make([]byte, 0, h.BodySize))
	if err != nil {
		return nil, nil, fmt.Errorf("decompress body: %w", err)
	}
	if uint64(len(body)) != h.BodySize {
		return nil, nil, fmt.Errorf("body size mismatch: got %d, header says %d", len(body), h.BodySize)
	}
	if sum := crc32.ChecksumIEEE(body); sum != h.Checksum {
		return nil, nil, fmt.Errorf("checksum mismatch: got %08x, want %08x", sum, h.Checksum)
	}
	pairs, err := decodeBody(body, int(h.Count))
	if err != nil {
		return nil, nil, err
	}
	return h, pairs, nil
}
