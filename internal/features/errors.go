package features

import "fmt"

// SchemaError reports malformed or empty input.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "schema error: " + e.Reason
}

// SchemaMismatchError reports a record that cannot be mapped onto the fitted schema.
type SchemaMismatchError struct {
	Column string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch on column %q: %s", e.Column, e.Reason)
}

// AlreadyFittedError is returned when Fit is called on a frozen component.
type AlreadyFittedError struct {
	Component string
}

func (e *AlreadyFittedError) Error() string {
	return e.Component + " is already fitted"
}

// IncompatibleVersionError is returned when a persisted artifact uses a format this build
// cannot apply.
type IncompatibleVersionError struct {
	Got int
	Min int
	Max int
}

func (e *IncompatibleVersionError) Error() string {
	return fmt.Sprintf("artifact format version %d not supported (supported %d..%d)", e.Got, e.Min, e.Max)
}

// StageError tags a transform failure with the pipeline stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }
