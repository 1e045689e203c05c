package reconcile

import "fmt"

// ConflictError reports an attempt to change a field that must stay stable
// once set. It names both values so the operator can tell which crawl is
// lying. Conflicts never resolve on retry.
type ConflictError struct {
	Entity string
	Field  string
	Have   string
	Want   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("reconcile: %s %s conflict: have %q, candidate says %q",
		e.Entity, e.Field, e.Have, e.Want)
}

func conflict(entity, field, have, want string) error {
	return &ConflictError{Entity: entity, Field: field, Have: have, Want: want}
}

// UsageError reports a caller mistake, such as an ambiguous lookup without
// disambiguating context. Usage errors must never be retried.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return "reconcile: " + e.Msg
}

func usage(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}
