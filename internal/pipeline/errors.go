package pipeline

import "fmt"

// Failure kinds recorded on the job row and surfaced to API clients. These are
// the stable vocabulary; messages are free text.
const (
	KindInvalidInput     = "invalid_input"
	KindProviderError    = "provider_error"
	KindCircuitOpen      = "circuit_open"
	KindValidationError  = "validation_error"
	KindTimeout          = "timeout"
	KindDeadlineExceeded = "deadline_exceeded"
	KindClaimLost        = "claim_lost"
)

// StageError ties a failure to the stage it happened in and the taxonomy kind
// that clients branch on.
type StageError struct {
	Stage string
	Kind  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
