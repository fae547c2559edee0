package chunk

import (
	"github.com/hashicorp/go-multierror"
)

// Verify loads chunks 1..numChunks and reports every chunk that is missing
// or fails validation. It returns the number of chunks that loaded cleanly.
func (s *Store) Verify(numChunks int) (int, error) {
	var result *multierror.Error
	ok := 0
	for i := 1; i <= numChunks; i++ {
		if _, err := s.Load(i); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		ok++
	}
	return ok, result.ErrorOrNil()
}
