package flow

import (
	"errors"
	"fmt"

	"github.com/ShayCichocki/modernity/internal/artefact"
)

// ErrFlowReused is returned when Start is called on a flow that already ran.
var ErrFlowReused = errors.New("flow already started")

// FlowError is the only error type returned by Engine.Run and Flow.Start.
// Err is one of the typed errors below, a provider error or a context error.
type FlowError struct {
	RunID string
	Phase State
	Err   error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("run %s failed during %s: %v", e.RunID, e.Phase.Phase(), e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// EmptyInputError means nothing was left to classify after normalization.
type EmptyInputError struct{}

func (EmptyInputError) Error() string {
	return "input is empty"
}

// ClassificationParseError means the classifier answer had no readable
// JSON object.
type ClassificationParseError struct {
	Response string
	Err      error
}

func (e *ClassificationParseError) Error() string {
	return fmt.Sprintf("cannot parse classification: %v", e.Err)
}

func (e *ClassificationParseError) Unwrap() error {
	return e.Err
}

// UnroutableClassificationError means the label is not one of the known labels.
type UnroutableClassificationError struct {
	Label string
}

func (e *UnroutableClassificationError) Error() string {
	if e.Label == "" {
		return "classification has an empty label"
	}
	return fmt.Sprintf("unknown classification label %q", e.Label)
}

// ConsolidationError means every category was skipped or failed.
type ConsolidationError = artefact.ConsolidationError

// CategorizationError means the categorizer answer could not be read.
type CategorizationError = artefact.CategorizationError
