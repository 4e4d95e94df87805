package telemetry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchema is matched by every *SchemaError.
	ErrSchema = errors.New("telemetry schema error")

	// ErrLengthMismatch is returned when the columns of a series differ in length.
	ErrLengthMismatch = errors.New("telemetry columns differ in length")
)

// SchemaError reports required columns that are absent from an external table.
type SchemaError struct {
	Missing []Column
}

func (e *SchemaError) Error() string {
	names := make([]string, len(e.Missing))
	for i, c := range e.Missing {
		names[i] = string(c)
	}
	return fmt.Sprintf("missing required columns: %s", strings.Join(names, ", "))
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

// ParseError reports a cell that could not be read as a number.
type ParseError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %s: cannot parse %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
