package config

import "fmt"

// Error reports an invalid configuration file, flag, or override string.
// It is fatal to a run and is raised before any job is dispatched.
type Error struct {
	// Source names where the bad value came from (a file path, "override", ...).
	Source string
	Err    error
}

func (e *Error) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("config error: %v", e.Err)
	}
	return fmt.Sprintf("config error in %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
