package model

// invalidConfigError reports a config field that failed validation, with
// enough detail to be actionable without re-running in verbose mode.
type invalidConfigError struct {
	field  string
	reason string
}

func (e invalidConfigError) Error() string {
	return "invalid model config: " + e.field + ": " + e.reason
}

// ErrInvalidConfig constructs an invalid-config error for a field.
func ErrInvalidConfig(field, reason string) error {
	return invalidConfigError{field: field, reason: reason}
}

// IsInvalidConfig reports whether err is a config validation failure.
func IsInvalidConfig(err error) bool {
	_, ok := err.(invalidConfigError)
	return ok
}

// notFoundError signals a missing model path or remote file. Fatal to the
// caller; there is no fallback model.
type notFoundError struct{ what string }

func (e notFoundError) Error() string { return "model not found: " + e.what }

// ErrNotFound constructs a not-found error.
func ErrNotFound(what string) error { return notFoundError{what: what} }

// IsNotFound reports whether err indicates a missing model.
func IsNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}
