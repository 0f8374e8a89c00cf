package policy

import "fmt"

// ConfigError reports a malformed policy configuration. A set is never
// returned together with a ConfigError.
type ConfigError struct {
	Source string
	Line   int
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("policy: %s:%d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("policy: %s: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
