// Package cliargs validates the positional arguments shared by the builder
// and trainer commands.
package cliargs

import (
	"fmt"
	"strconv"
)

// DefaultCorpusSize is the number of lines in the lichess evaluation dump
// the tools were sized for.
const DefaultCorpusSize = 20999266

// UsageError reports bad command line arguments. Commands print it with
// their usage text and exit with status 2.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

func usagef(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// Chunks holds the validated <numChunks> <chunkSize> pair.
type Chunks struct {
	NumChunks int
	ChunkSize int
}

// Parse validates exactly two positional arguments, <numChunks> and
// <chunkSize>, against a corpus of corpusSize records:
// 1 <= chunkSize <= corpusSize and 1 <= numChunks <= corpusSize/chunkSize.
func Parse(args []string, corpusSize int) (Chunks, error) {
	if len(args) != 2 {
		return Chunks{}, usagef("expected 2 arguments <numChunks> <chunkSize>, got %d", len(args))
	}
	if corpusSize < 1 {
		return Chunks{}, usagef("corpus size must be positive, got %d", corpusSize)
	}
	numChunks, err := strconv.Atoi(args[0])
	if err != nil {
		return Chunks{}, usagef("numChunks %q is not an integer", args[0])
	}
	chunkSize, err := strconv.Atoi(args[1])
	if err != nil {
		return Chunks{}, usagef("chunkSize %q is not an integer", args[1])
	}
	if chunkSize < 1 || chunkSize > corpusSize {
		return Chunks{}, usagef("chunkSize must be between 1 and %d, got %d", corpusSize, chunkSize)
	}
	if maxChunks := corpusSize / chunkSize; numChunks < 1 || numChunks > maxChunks {
		return Chunks{}, usagef("numChunks must be between 1 and %d for chunkSize %d, got %d", maxChunks, chunkSize, numChunks)
	}
	return Chunks{NumChunks: numChunks, ChunkSize: chunkSize}, nil
}
