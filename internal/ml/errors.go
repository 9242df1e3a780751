package ml

import "fmt"

// StageClassify tags failures raised by the classifier itself.
const StageClassify = "classify"

// PredictionError wraps any failure on the prediction path with the stage that produced it.
// No default prediction is ever returned alongside it.
type PredictionError struct {
	Stage string
	Err   error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed at %s: %v", e.Stage, e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }
