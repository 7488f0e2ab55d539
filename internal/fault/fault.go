// Package fault classifies errors into the failure kinds callers act on.
package fault

import (
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
)

// Kind is a failure category.
type Kind string

const (
	// KindProvider covers transport, timeout, auth and rate-limit failures
	// of an external provider. Recovered locally by the orchestrator.
	KindProvider Kind = "provider"
	// KindValidation is missing or malformed caller input.
	KindValidation Kind = "validation"
	// KindPersistence is a store failure; fatal for the unit of work.
	KindPersistence Kind = "persistence"
	// KindNotFound is an unknown company, contact or search id.
	KindNotFound Kind = "not_found"
	// KindUnknown is anything unclassified.
	KindUnknown Kind = "unknown"
)

// Error attaches a Kind and operation name to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: eris.Wrap(err, op)}
}

// Provider wraps err as a provider failure.
func Provider(op string, err error) error {
	return wrap(KindProvider, op, err)
}

// Persistence wraps err as a persistence failure.
func Persistence(op string, err error) error {
	return wrap(KindPersistence, op, err)
}

// Validation returns a validation failure with the given message.
func Validation(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Err: eris.Wrap(eris.New(msg), op)}
}

// Validationf returns a formatted validation failure.
func Validationf(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Err: eris.Wrap(eris.Errorf(format, args...), op)}
}

// NotFound returns a not-found failure naming the missing entity.
func NotFound(op, entity, id string) error {
	return &Error{Kind: KindNotFound, Op: op, Err: eris.Wrap(eris.Errorf("%s %q not found", entity, id), op)}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a failure onto a response code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
