package input

import (
	"errors"
	"fmt"
)

// ErrIncompatibleViews is wrapped by Open errors when two inputs given as
// the left and right view of a stereo pair do not share one frame format.
var ErrIncompatibleViews = errors.New("input: left and right views differ")

// ProgrammingError is the panic value for calls that break the Input's
// usage contract: operations before Open, out of range stream indices and
// unsupported stereo layouts. Callers are expected to check first, e.g.
// with StereoLayoutSupported.
type ProgrammingError struct {
	Op  string
	Msg string
}

func (e ProgrammingError) Error() string {
	return fmt.Sprintf("input: %s: %s", e.Op, e.Msg)
}

func misuse(op, format string, args ...any) {
	panic(ProgrammingError{Op: op, Msg: fmt.Sprintf(format, args...)})
}
