package evalgen

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/freeeve/pgn/v3"

	"github.com/freeeve/chesscnn/internal/position"
)

// Source produces positions to label by calling emit once per FEN. It
// stops early when emit returns an error.
type Source func(ctx context.Context, emit func(fen string) error) error

// FENSource reads one FEN per line. Blank lines and lines starting with
// '#' are ignored, and lines whose placement does not encode are skipped.
func FENSource(r io.Reader, skipped *int64) Source {
	return func(ctx context.Context, emit func(fen string) error) error {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if _, err := position.Encode(line); err != nil {
				if skipped != nil {
					*skipped++
				}
				continue
			}
			if err := emit(line); err != nil {
				return err
			}
		}
		return sc.Err()
	}
}

// PGNConfig filters the positions taken from a PGN file.
type PGNConfig struct {
	RatingMin int // both players must be rated at least this (0 = no filter)
	MinPly    int // skip the first MinPly positions of every game
	MaxPly    int // stop after this many plies (0 = whole game)
}

// PGNSource replays every game in a PGN file (optionally .pgn.zst) and
// emits each distinct position once.
func PGNSource(path string, cfg PGNConfig) Source {
	return func(ctx context.Context, emit func(fen string) error) error {
		parser := pgn.Games(path)
		seen := make(map[pgn.PackedPosition]struct{})

		stopped := false
		stop := func() {
			if !stopped {
				parser.Stop()
				stopped = true
			}
		}

		for game := range parser.Games {
			if ctx.Err() != nil {
				stop()
				break
			}
			if cfg.RatingMin > 0 &&
				(parseRating(game.Tags["WhiteElo"]) < cfg.RatingMin || parseRating(game.Tags["BlackElo"]) < cfg.RatingMin) {
				continue
			}

			pos := pgn.NewStartingPosition()
			for ply := 0; ; ply++ {
				if cfg.MaxPly > 0 && ply > cfg.MaxPly {
					break
				}
				if ply >= cfg.MinPly {
					key := pos.Pack()
					if _, dup := seen[key]; !dup {
						seen[key] = struct{}{}
						if err := emit(pos.ToFEN()); err != nil {
							stop()
							return err
						}
					}
				}
				if ply >= len(game.Moves) {
					break
				}
				if err := pgn.ApplyMove(pos, game.Moves[ply]); err != nil {
					break
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return parser.Err()
	}
}

func parseRating(s string) int {
	if s == "" || s == "?" || s == "-" {
		return 0
	}
	r, _ := strconv.Atoi(s)
	return r
}
