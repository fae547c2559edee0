package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/notnil/chess"

	"github.com/freeeve/chesscnn/internal/chunk"
	"github.com/freeeve/chesscnn/internal/position"
)

func main() {
	defaultDataDir := "./data"
	if env := os.Getenv("CHESSCNN_DATA"); env != "" {
		defaultDataDir = env
	}

	var (
		dataDir    = flag.String("data-dir", defaultDataDir, "Data directory holding <chunkSize>chunks")
		chunkSize  = flag.Int("chunk-size", 0, "Chunk size the corpus was built with")
		index      = flag.Int("index", 1, "Chunk to export")
		outputPath = flag.String("out", "-", "Output CSV file (- = stdout)")
		verify     = flag.Int("verify", 0, "Verify chunks 1..N instead of exporting")
		draw       = flag.Int("draw", 0, "Print the first N boards of the chunk to stderr")
	)
	flag.Parse()

	if *chunkSize < 1 {
		fmt.Fprintln(os.Stderr, "Usage: export-chunk --chunk-size <n> [--index <k>] [--out file.csv] [--verify N]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	s, err := chunk.Open(chunk.Config{DataDir: *dataDir, ChunkSize: *chunkSize, ReadOnly: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open chunk store: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	if *verify > 0 {
		ok, err := s.Verify(*verify)
		fmt.Fprintf(os.Stderr, "Verified %d/%d chunks in %s\n", ok, *verify, s.Dir())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	pairs, err := s.Load(*index)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load chunk: %v\n", err)
		os.Exit(1)
	}
	if e, ok := s.Entry(*index); ok {
		fmt.Fprintf(os.Stderr, "Chunk %d: records %d-%d from %s (run %s, %s)\n",
			*index, e.FirstRecord, e.FirstRecord+int64(e.Records)-1, e.Source, e.RunID, e.CommittedAt.Format("2006-01-02 15:04:05"))
	}

	for i := 0; i < *draw && i < len(pairs); i++ {
		board, err := drawBoard(&pairs[i].Board)
		if err != nil {
			fmt.Fprintf(os.Stderr, "draw pair %d: %v\n", i, err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "#%d score %d\n%s\n", i, pairs[i].Score, board)
	}

	var out io.Writer = os.Stdout
	if *outputPath != "-" {
		f, err := os.Create(*outputPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create output file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	if err := writeCSV(out, pairs); err != nil {
		fmt.Fprintf(os.Stderr, "write csv: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Exported %d pairs from chunk %d\n", len(pairs), *index)
}

func writeCSV(w io.Writer, pairs []chunk.Pair) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"placement", "score"}); err != nil {
		return err
	}
	for i := range pairs {
		placement, err := position.Placement(&pairs[i].Board)
		if err != nil {
			return fmt.Errorf("pair %d: %w", i, err)
		}
		if err := writer.Write([]string{placement, strconv.Itoa(int(pairs[i].Score))}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// drawBoard renders a decoded placement. Side to move and castling are
// not stored in chunks, so the board is drawn as if White were to move.
func drawBoard(t *position.Tensor) (string, error) {
	placement, err := position.Placement(t)
	if err != nil {
		return "", err
	}
	opt, err := chess.FEN(placement + " w - - 0 1")
	if err != nil {
		return "", err
	}
	return chess.NewGame(opt).Position().Board().Draw(), nil
}
