package chunk

import (
	"errors"
	"fmt"
)

var (
	// ErrChunkExists is returned when committing over a committed chunk.
	ErrChunkExists = errors.New("chunk already committed")
	// ErrCorruptChunk is returned when a chunk file fails validation.
	ErrCorruptChunk = errors.New("corrupt chunk file")
	// ErrLocked is returned when another builder holds the directory lock.
	ErrLocked = errors.New("chunk directory locked")
	// ErrReadOnly is returned by write operations on a read-only store.
	ErrReadOnly = errors.New("chunk store opened read-only")
)

// ChunkNotFoundError reports a chunk that has not been committed.
type ChunkNotFoundError struct {
	Index int
	Path  string
}

func (e *ChunkNotFoundError) Error() string {
	return fmt.Sprintf("chunk %d not found (%s)", e.Index, e.Path)
}

// IOError reports a storage failure while reading or writing a chunk.
type IOError struct {
	Op    string
	Index int
	Err   error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s chunk %d: %v", e.Op, e.Index, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
