package trainer

import (
	"errors"
	"fmt"
)

// ErrDiverged is returned when a batch loss is NaN or infinite.
var ErrDiverged = errors.New("training diverged")

// MissingChunkError reports a chunk that must exist before training starts.
type MissingChunkError struct {
	Index int
}

func (e *MissingChunkError) Error() string {
	return fmt.Sprintf("chunk %d is missing; build the corpus first", e.Index)
}
