package trainer

import (
	"gorgonia.org/tensor"
)

// Model is the network being trained. Inputs are float32 tensors shaped
// [batch, 6, 8, 8]; labels are float32 tensors shaped [batch].
type Model interface {
	// Predict returns one value per position in x.
	Predict(x *tensor.Dense) ([]float32, error)
	// Update runs one optimization step and returns the batch loss.
	Update(x, y *tensor.Dense) (float32, error)
	// Evaluate returns the batch loss without changing parameters.
	Evaluate(x, y *tensor.Dense) (float32, error)
}
