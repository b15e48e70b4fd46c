package sql

import "fmt"

// ParseError reports a syntax error at a specific byte offset into the
// input statement.
type ParseError struct {
	Message string
	Pos     int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Pos, e.Message)
}

// NewParseError builds a ParseError.
func NewParseError(pos int, format string, args ...interface{}) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...), Pos: pos}
}
