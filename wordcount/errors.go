package wordcount

import (
	"errors"
	"fmt"
)

// ErrRunning is returned by Run when the driver is already executing a run.
var ErrRunning = errors.New("wordcount: run already in progress")

// InputError reports an input source that is missing, unreadable or malformed.
type InputError struct {
	Source string
	Err    error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input %s: %v", e.Source, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// OutputError reports a sink that could not be written or committed.
type OutputError struct {
	Sink string
	Err  error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("output %s: %v", e.Sink, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

func IsOutputError(err error) bool {
	var oe *OutputError
	return errors.As(err, &oe)
}

// PreconditionError is the panic value used when a caller breaks the contract
// of a stage, e.g. mapping a nil record or reducing an empty group. It is a bug
// in the caller and is never recovered inside this package.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e PreconditionError) Error() string {
	return fmt.Sprintf("wordcount: precondition violated in %s: %s", e.Op, e.Reason)
}

func violate(op, format string, args ...any) {
	panic(PreconditionError{Op: op, Reason: fmt.Sprintf(format, args...)})
}
