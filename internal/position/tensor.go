// Package position encodes the piece placement of a FEN into a fixed-shape
// occupancy tensor of 6 piece planes over an 8x8 board.
//
// Plane order is pawn, rook, knight, bishop, queen, king regardless of color.
// A white piece is written as +1 and a black piece as -1 on its plane. Row 0
// is the first row of the FEN placement field (rank 8); file 0 is the a-file.
package position

import (
	"fmt"
	"strings"
)

const (
	Planes = 6
	Ranks  = 8
	Files  = 8

	// Squares is the number of board cells.
	Squares = Ranks * Files
	// Size is the number of tensor elements.
	Size = Planes * Squares
)

// Piece planes.
const (
	Pawn = iota
	Rook
	Knight
	Bishop
	Queen
	King
)

// Tensor is an encoded position. The zero value is the empty board.
type Tensor [Planes][Ranks][Files]int8

// pieceLetters maps a plane to its FEN letter (white/uppercase form).
var pieceLetters = [Planes]byte{'P', 'R', 'N', 'B', 'Q', 'K'}

// planeOf holds plane+1 for every recognised piece letter, 0 otherwise.
var planeOf = [256]int8{
	'p': Pawn + 1, 'r': Rook + 1, 'n': Knight + 1, 'b': Bishop + 1, 'q': Queen + 1, 'k': King + 1,
	'P': Pawn + 1, 'R': Rook + 1, 'N': Knight + 1, 'B': Bishop + 1, 'Q': Queen + 1, 'K': King + 1,
}

// Encode converts a FEN string into a Tensor. Only the piece placement field
// (first space-delimited token) is read.
func Encode(fen string) (Tensor, error) {
	var t Tensor

	placement, _, _ := strings.Cut(strings.TrimSpace(fen), " ")
	if placement == "" {
		return t, &MalformedPositionError{FEN: fen, Reason: "empty piece placement"}
	}
	if rows := strings.Count(placement, "/") + 1; rows != Ranks {
		return t, &MalformedPositionError{FEN: fen, Reason: fmt.Sprintf("%d rows, want %d", rows, Ranks)}
	}

	// cursor walks the board 0..63; cursor>>3 is the row, cursor&7 the file.
	cursor := 0
	for row := 0; row < Ranks; row++ {
		var rowText string
		rowText, placement, _ = strings.Cut(placement, "/")
		rowStart := cursor
		for i := 0; i < len(rowText); i++ {
			c := rowText[i]
			if c >= '1' && c <= '8' {
				cursor += int(c - '0')
			} else {
				p := planeOf[c]
				if p == 0 {
					return Tensor{}, &MalformedPositionError{FEN: fen, Reason: fmt.Sprintf("unexpected character %q in row %d", c, row)}
				}
				if cursor-rowStart >= Files {
					return Tensor{}, &MalformedPositionError{FEN: fen, Reason: fmt.Sprintf("row %d has more than %d squares", row, Files)}
				}
				v := int8(1)
				if c >= 'a' {
					v = -1
				}
				t[p-1][cursor>>3][cursor&7] = v
				cursor++
			}
			if cursor-rowStart > Files {
				return Tensor{}, &MalformedPositionError{FEN: fen, Reason: fmt.Sprintf("row %d has more than %d squares", row, Files)}
			}
		}
		if cursor-rowStart != Files {
			return Tensor{}, &MalformedPositionError{FEN: fen, Reason: fmt.Sprintf("row %d has %d squares, want %d", row, cursor-rowStart, Files)}
		}
	}
	return t, nil
}

// At returns the value at a plane and board cell.
func (t *Tensor) At(plane, rank, file int) int8 {
	return t[plane][rank][file]
}

// Pieces counts the nonzero entries across all planes.
func (t *Tensor) Pieces() int {
	n := 0
	for p := range t {
		for r := range t[p] {
			for f := range t[p][r] {
				if t[p][r][f] != 0 {
					n++
				}
			}
		}
	}
	return n
}

// AppendFloat32 appends the tensor in plane-major order.
func (t *Tensor) AppendFloat32(dst []float32) []float32 {
	for p := range t {
		for r := range t[p] {
			for f := range t[p][r] {
				dst = append(dst, float32(t[p][r][f]))
			}
		}
	}
	return dst
}

// Placement decodes a tensor back into a FEN piece placement field.
func Placement(t *Tensor) (string, error) {
	var sb strings.Builder
	sb.Grow(71)
	for r := 0; r < Ranks; r++ {
		if r > 0 {
			sb.WriteByte('/')
		}
		empty := 0
		for f := 0; f < Files; f++ {
			letter := byte(0)
			for p := 0; p < Planes; p++ {
				v := t[p][r][f]
				if v == 0 {
					continue
				}
				if letter != 0 {
					return "", fmt.Errorf("cell %c%d occupied on more than one plane", 'a'+f, Ranks-r)
				}
				switch v {
				case 1:
					letter = pieceLetters[p]
				case -1:
					letter = pieceLetters[p] + ('a' - 'A')
				default:
					return "", fmt.Errorf("cell %c%d holds %d on plane %d", 'a'+f, Ranks-r, v, p)
				}
			}
			if letter == 0 {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteByte(letter)
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
	}
	return sb.String(), nil
}
