// Package record decodes lichess-style evaluation lines and turns their
// engine evaluation into a scalar training label.
package record

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/freeeve/chesscnn/internal/position"
)

// MateScore is the label for a forced mate. Mates for White map to
// +MateScore, mates for Black to -MateScore.
const MateScore = 10000

// Record is one line of the input stream.
type Record struct {
	FEN   string `json:"fen"`
	Evals []Eval `json:"evals"`
}

// Eval is one engine analysis of a position.
type Eval struct {
	PVs    []PV `json:"pvs"`
	Knodes int  `json:"knodes,omitempty"`
	Depth  int  `json:"depth,omitempty"`
}

// PV is a principal variation. Exactly one of CP and Mate is set; both are
// from White's point of view.
type PV struct {
	CP   *int   `json:"cp,omitempty"`
	Mate *int   `json:"mate,omitempty"`
	Line string `json:"line,omitempty"`
}

// Parse decodes one input line.
func Parse(line []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Record{}, &position.MalformedPositionError{Reason: "decode record", Err: err}
	}
	if rec.FEN == "" {
		return Record{}, &position.MalformedPositionError{Reason: "record has no fen"}
	}
	return rec, nil
}

// Normalize returns the label for a list of evaluations: the first PV of
// the first evaluation, verbatim centipawns or a saturated mate score.
func Normalize(evals []Eval) (int32, error) {
	if len(evals) == 0 {
		return 0, &position.MalformedPositionError{Reason: "no evaluations"}
	}
	if len(evals[0].PVs) == 0 {
		return 0, &position.MalformedPositionError{Reason: "evaluation has no principal variation"}
	}
	pv := evals[0].PVs[0]
	switch {
	case pv.CP != nil:
		if *pv.CP < math.MinInt32 || *pv.CP > math.MaxInt32 {
			return 0, &position.MalformedPositionError{Reason: fmt.Sprintf("centipawn score %d out of range", *pv.CP)}
		}
		return int32(*pv.CP), nil
	case pv.Mate != nil:
		if *pv.Mate > 0 {
			return MateScore, nil
		}
		return -MateScore, nil
	}
	return 0, &position.MalformedPositionError{Reason: "principal variation has neither cp nor mate"}
}

// Label normalizes the record's evaluations, attaching the FEN to errors.
func (r *Record) Label() (int32, error) {
	score, err := Normalize(r.Evals)
	if mpe, ok := err.(*position.MalformedPositionError); ok {
		mpe.FEN = r.FEN
	}
	return score, err
}
