package synth

import "fmt"

// SchemaGenerationError reports a target whose parameters cannot be
// expressed as a JSON schema.
type SchemaGenerationError struct {
	Target string
	// Param is empty when the failure is not tied to one parameter.
	Param  string
	Reason string
}

func (e *SchemaGenerationError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("unable to generate a schema for %s: %s", e.Target, e.Reason)
	}
	return fmt.Sprintf("unable to generate a schema for parameter %q of %s: %s", e.Param, e.Target, e.Reason)
}
