package topology

import (
	"errors"
	"fmt"
)

// ErrConfiguration is matched by every topology declaration failure.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports an invalid topology declaration. Declarations
// fail at build time and are never retried.
type ConfigurationError struct {
	// Field names the offending option (e.g., "tiers[1].cidrMask")
	Field string
	// Reason describes the violated constraint
	Reason string
	// Err is an optional, more specific sentinel
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap exposes both ErrConfiguration and the specific sentinel, if any.
func (e *ConfigurationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfiguration, e.Err}
	}
	return []error{ErrConfiguration}
}

func configErr(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
