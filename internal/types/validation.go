package types

import (
	"fmt"
	"regexp"
	"strings"
)

// emailPattern is the basic local@domain.tld shape check applied to
// dynamically-resolved recipient addresses. It is deliberately loose: the
// goal is to reject payload values that are obviously not addresses, not to
// implement RFC 5322.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[A-Za-z]{2,}$`)

// IsEmailAddress reports whether s looks like an email address.
func IsEmailAddress(s string) bool {
	return emailPattern.MatchString(s)
}

// NormalizeEmail lowercases and trims an address for deduplication. Two
// recipients are the same person iff their normalized addresses match.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Validate checks the invariants a SignalEvent must satisfy before it is
// appended to the event store.
func (e *SignalEvent) Validate() error {
	if !e.SignalType.IsValid() {
		return NewAppError(ErrCodeValidationUnknownSignalType,
			fmt.Sprintf("unknown signal type %q", e.SignalType), nil)
	}
	if e.Payload == nil {
		return NewAppError(ErrCodeValidationInvalidPayload, "payload must not be nil", nil)
	}
	return nil
}

// Validate checks that a hook is internally consistent. Hooks are
// administrator-managed; validation runs when the registry loads them so a
// malformed row is surfaced rather than silently skipped.
func (h *NotificationHook) Validate() error {
	if !h.SignalType.IsValid() {
		return NewAppError(ErrCodeValidationUnknownSignalType,
			fmt.Sprintf("hook %s references unknown signal type %q", h.ID, h.SignalType), nil)
	}
	if h.TemplateID == "" {
		return NewAppError(ErrCodeValidationMissingField,
			fmt.Sprintf("hook %s has no template", h.ID), nil)
	}
	if len(h.Channels) == 0 {
		return NewAppError(ErrCodeValidationMissingField,
			fmt.Sprintf("hook %s has no channels", h.ID), nil)
	}
	return nil
}
