package types

import "fmt"

// Status classifies how a pipeline stage finished.
type Status string

const (
	// StatusOK means the stage processed all of its input.
	StatusOK Status = "ok"
	// StatusNoInput means the upstream artifact was missing or empty; the
	// caller may skip the stages that depend on it.
	StatusNoInput Status = "no_input"
	// StatusPartial means the stage succeeded but dropped some input.
	StatusPartial Status = "partial"
	// StatusAborted means the stage failed fatally and wrote nothing.
	StatusAborted Status = "aborted"
)

// Outcome is what a stage reports back to the orchestrating caller.
type Outcome struct {
	Stage     string
	Status    Status
	Processed int
	Skipped   int
	Err       error
}

// NewOutcome derives a status from the processed/skipped counts.
func NewOutcome(stage string, processed, skipped int) Outcome {
	status := StatusOK
	if skipped > 0 {
		status = StatusPartial
	}
	return Outcome{Stage: stage, Status: status, Processed: processed, Skipped: skipped}
}

// Aborted returns a fatal outcome for stage.
func Aborted(stage string, err error) Outcome {
	return Outcome{Stage: stage, Status: StatusAborted, Err: err}
}

// NoInput returns an empty-but-successful outcome for stage.
func NoInput(stage string) Outcome {
	return Outcome{Stage: stage, Status: StatusNoInput}
}

func (o Outcome) String() string {
	switch o.Status {
	case StatusAborted:
		return fmt.Sprintf("%s: aborted: %v", o.Stage, o.Err)
	case StatusNoInput:
		return fmt.Sprintf("%s: nothing to do", o.Stage)
	case StatusPartial:
		return fmt.Sprintf("%s: %d processed, %d dropped", o.Stage, o.Processed, o.Skipped)
	default:
		return fmt.Sprintf("%s: %d processed", o.Stage, o.Processed)
	}
}
