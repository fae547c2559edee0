package trainer

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
)

const (
	TrainLossFile = "train_loss.csv"
	EvalLossFile  = "eval_loss.csv"
)

// BatchLoss is the loss of one training batch.
type BatchLoss struct {
	Batch int // global batch number, counted across chunks and epochs
	Chunk int
	Epoch int
	Loss  float32
}

// ChunkLoss is the mean evaluation loss on a chunk's held-out pairs.
type ChunkLoss struct {
	Chunk   int
	Samples int
	Loss    float32
}

// Metrics collects the loss series of a training run.
type Metrics struct {
	Train []BatchLoss
	Eval  []ChunkLoss
}

// WriteCSV writes train_loss.csv and eval_loss.csv into dir.
func (m *Metrics) WriteCSV(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	train := [][]string{{"batch", "chunk", "epoch", "loss"}}
	for _, b := range m.Train {
		train = append(train, []string{
			strconv.Itoa(b.Batch),
			strconv.Itoa(b.Chunk),
			strconv.Itoa(b.Epoch),
			strconv.FormatFloat(float64(b.Loss), 'g', -1, 32),
		})
	}
	if err := writeCSVFile(filepath.Join(dir, TrainLossFile), train); err != nil {
		return err
	}

	eval := [][]string{{"chunk", "samples", "loss"}}
	for _, c := range m.Eval {
		eval = append(eval, []string{
			strconv.Itoa(c.Chunk),
			strconv.Itoa(c.Samples),
			strconv.FormatFloat(float64(c.Loss), 'g', -1, 32),
		})
	}
	return writeCSVFile(filepath.Join(dir, EvalLossFile), eval)
}

func writeCSVFile(path string, rows [][]string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
