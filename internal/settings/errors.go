package settings

import "fmt"

// ConfigError reports an invalid or missing backend setting.
type ConfigError struct {
	Backend string
	Field   string
	Value   string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	prefix := e.Backend
	if prefix == "" {
		prefix = "config"
	}
	switch {
	case e.Field == "":
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	case e.Value == "":
		return fmt.Sprintf("%s: %s: %s", prefix, e.Field, e.Message)
	default:
		return fmt.Sprintf("%s: %s=%q: %s", prefix, e.Field, e.Value, e.Message)
	}
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// WithBackend returns e labelled with backend unless it already names one.
func (e *ConfigError) WithBackend(backend string) *ConfigError {
	if e.Backend != "" {
		return e
	}
	c := *e
	c.Backend = backend
	return &c
}

// NewConfigError creates a ConfigError for a field validation failure.
func NewConfigError(backend, field, message string) *ConfigError {
	return &ConfigError{Backend: backend, Field: field, Message: message}
}

// NewConfigErrorWithCause creates a ConfigError with an underlying cause.
func NewConfigErrorWithCause(backend, field, message string, cause error) *ConfigError {
	return &ConfigError{Backend: backend, Field: field, Message: message, Cause: cause}
}
