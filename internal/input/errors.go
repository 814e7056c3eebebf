package input

import (
	"fmt"
	"strings"
)

// ParseError reports an input file that could not be opened or decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// MissingColumnError reports that no table in a file has any of the
// expected column names.
type MissingColumnError struct {
	Path       string
	Candidates []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: missing column, expected one of: %s", e.Path, strings.Join(e.Candidates, ", "))
}
