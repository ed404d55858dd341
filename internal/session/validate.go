package session

import (
	"strings"
	"unicode/utf8"
)

// ValidationKind classifies why validation failed.
type ValidationKind string

const (
	InvalidState      ValidationKind = "invalid_state"
	SecurityViolation ValidationKind = "security_violation"
	SchemaValidation  ValidationKind = "schema_validation"
)

// ValidationError is a fail-fast validator failure. Never retried.
type ValidationError struct {
	Kind   ValidationKind
	Field  string
	Detail string
}

func (e ValidationError) Error() string {
	return "validation failed (" + string(e.Kind) + "): " + e.Field + ": " + e.Detail
}

// IsValidation reports whether err is a validator failure.
func IsValidation(err error) bool {
	_, ok := err.(ValidationError)
	return ok
}

// maxMessageBytes bounds a single message's content.
const maxMessageBytes = 1 << 20

var allowedRoles = map[string]bool{
	"system":    true,
	"user":      true,
	"assistant": true,
	"tool":      true,
}

// ValidateSession checks session-level invariants. Runs before any
// per-message validation or generation work.
func ValidateSession(sess *Session) error {
	if sess == nil {
		return ValidationError{Kind: InvalidState, Field: "session", Detail: "nil session"}
	}
	if strings.TrimSpace(sess.ID) == "" {
		return ValidationError{Kind: InvalidState, Field: "id", Detail: "empty session id"}
	}
	for _, srv := range sess.Servers {
		if err := validateServer(srv); err != nil {
			return err
		}
	}
	return nil
}

// ValidateMessage checks one history entry.
func ValidateMessage(msg Message) error {
	if !allowedRoles[msg.Role] {
		return ValidationError{Kind: SchemaValidation, Field: "role",
			Detail: "expected one of system/user/assistant/tool, got " + msg.Role}
	}
	if len(msg.Content) > maxMessageBytes {
		return ValidationError{Kind: SchemaValidation, Field: "content", Detail: "message exceeds 1MiB"}
	}
	if !utf8.ValidString(msg.Content) {
		return ValidationError{Kind: SchemaValidation, Field: "content", Detail: "invalid UTF-8"}
	}
	return nil
}

// validateServer rejects attached server references that could escape the
// expected transport or filesystem scope.
func validateServer(srv string) error {
	if strings.TrimSpace(srv) == "" {
		return ValidationError{Kind: SchemaValidation, Field: "servers", Detail: "empty server reference"}
	}
	if strings.Contains(srv, "..") {
		return ValidationError{Kind: SecurityViolation, Field: "servers",
			Detail: "path traversal in server reference " + srv}
	}
	if strings.Contains(srv, "://") &&
		!strings.HasPrefix(srv, "http://") && !strings.HasPrefix(srv, "https://") {
		return ValidationError{Kind: SecurityViolation, Field: "servers",
			Detail: "unsupported scheme in server reference " + srv}
	}
	return nil
}
