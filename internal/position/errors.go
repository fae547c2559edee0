package position

import "fmt"

// MalformedPositionError reports an input record that cannot be encoded or
// scored: a bad FEN placement or an evaluation without a usable score.
type MalformedPositionError struct {
	FEN    string
	Reason string
	Err    error
}

func (e *MalformedPositionError) Error() string {
	msg := "malformed position"
	if e.FEN != "" {
		msg += fmt.Sprintf(" %q", e.FEN)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedPositionError) Unwrap() error {
	return e.Err
}
