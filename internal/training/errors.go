package training

import "fmt"

// TrainingDivergedError reports a non-finite loss. Training stops and the
// parameters of the failing step are not applied.
type TrainingDivergedError struct {
	Epoch int
	Step  int
	Loss  float64
}

func (e *TrainingDivergedError) Error() string {
	return fmt.Sprintf("training diverged at epoch %d step %d: loss %v", e.Epoch, e.Step, e.Loss)
}
