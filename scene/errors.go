package scene

import "fmt"

// InvalidEventError reports an edit event that failed validation.
type InvalidEventError struct {
	Field  string
	Reason string
}

func (e *InvalidEventError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid edit event: %s", e.Reason)
	}
	return fmt.Sprintf("invalid edit event: %s %s", e.Field, e.Reason)
}

// InvalidCoordinateError reports a waypoint that failed validation.
type InvalidCoordinateError struct {
	Field  string
	Reason string
}

func (e *InvalidCoordinateError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid coordinate: %s", e.Reason)
	}
	return fmt.Sprintf("invalid coordinate: %s %s", e.Field, e.Reason)
}

// ParseError wraps a failure to read an uploaded archive.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "parse archive: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
