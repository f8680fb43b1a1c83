package command

import (
	"errors"
	"fmt"
)

// ValidationError is a write rejected for the shape of its input, either
// before the store is reached or by the store's own constraints.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type AuthorizationError struct {
	Action   string
	Resource string
	Actor    string
	Err      error
}

func (e *AuthorizationError) Error() string {
	actor := e.Actor
	if actor == "" {
		actor = "anonymous"
	}
	return fmt.Sprintf("%s may not %s %s", actor, e.Action, e.Resource)
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// KindOf classifies err for surfaces choosing an exit code or HTTP status.
func KindOf(err error) Kind {
	var (
		ve *ValidationError
		ae *AuthorizationError
		ne *NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &ae):
		return KindAuthorization
	case errors.As(err, &ne):
		return KindNotFound
	default:
		return KindInternal
	}
}

// FieldOf returns the offending field of a ValidationError, or "".
func FieldOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Field
	}
	return ""
}
