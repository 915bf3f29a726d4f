package models

import (
	"errors"
	"fmt"
)

// ErrNoData is reported when a stage receives or produces an empty table
var ErrNoData = errors.New("no data")

// StageError attributes a failure to a pipeline stage, and to a row or column when known.
// Row is 1-based and counts the header; 0 means unknown.
type StageError struct {
	Stage  string
	Row    int
	Column string
	Err    error
}

func (e *StageError) Error() string {
	msg := "stage " + e.Stage
	if e.Row > 0 {
		msg += fmt.Sprintf(" row %d", e.Row)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(" column %q", e.Column)
	}
	return msg + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err for stage unless it already carries a stage
func NewStageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}
