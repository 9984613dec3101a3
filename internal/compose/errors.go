package compose

import "fmt"

// CompositionError reports a config that cannot be composed: a missing
// default, a cycle, a malformed defaults list or an unparsable file.
type CompositionError struct {
	File string
	Err  error
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("compose %s: %v", e.File, e.Err)
}

func (e *CompositionError) Unwrap() error { return e.Err }
