// Package apierr defines the request-scoped error taxonomy shared by the
// filter compiler, planner, pagination engine, serializer and deserializer.
//
// Every failure a caller can act on is an *Error carrying a Kind. Adapters map
// kinds to transport status codes with Status; nothing else in the module does.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error.
type Kind string

const (
	// Query errors.
	UnknownField        Kind = "unknown_field"
	UnknownRelation     Kind = "unknown_relation"
	ComparisonToNull    Kind = "comparison_to_null"
	AmbiguousExpression Kind = "ambiguous_expression"
	ParseException      Kind = "parse_error"
	PaginationError     Kind = "pagination_error"

	// Write errors.
	MissingData                 Kind = "missing_data"
	MissingID                   Kind = "missing_id"
	MissingType                 Kind = "missing_type"
	ConflictingType             Kind = "conflicting_type"
	ConflictingID               Kind = "conflicting_id"
	ClientGeneratedIDNotAllowed Kind = "client_generated_id_not_allowed"
	UnknownAttribute            Kind = "unknown_attribute"
	UnknownRelationship         Kind = "unknown_relationship"

	// Lookup errors.
	ResourceNotFound     Kind = "resource_not_found"
	MultipleResultsFound Kind = "multiple_results_found"

	// Serialization errors.
	SerializationException Kind = "serialization_error"

	// Storage-layer errors.
	ConflictException   Kind = "conflict"
	ValidationException Kind = "validation_error"
)

// Error implements errors.Is against a bare Kind so callers can write
// errors.Is(err, apierr.UnknownField).
func (k Kind) Error() string { return string(k) }

// Error is a typed, request-scoped failure.
type Error struct {
	Kind    Kind
	Message string
	// Field names the field, relation or parameter the error is about, if any.
	Field string
	// Detail carries kind-specific values such as the expected and given type.
	Detail map[string]any
	Cause  error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error of the same kind, or a bare Kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind that keeps cause in its chain.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithField sets the field the error refers to.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithDetail attaches a key/value pair to the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

func NewUnknownField(model, field string) *Error {
	return New(UnknownField, "unknown field %q on %s", field, model).WithField(field)
}

func NewUnknownRelation(model, relation string) *Error {
	return New(UnknownRelation, "unknown relation %q on %s", relation, model).WithField(relation)
}

func NewConflictingType(expected, given string) *Error {
	return New(ConflictingType, "expected type %q, got %q", expected, given).
		WithDetail("expected", expected).
		WithDetail("given", given)
}

func NewPaginationError(format string, args ...any) *Error {
	return New(PaginationError, format, args...)
}

func NewParseError(format string, args ...any) *Error {
	return New(ParseException, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err carries none.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// Status maps an error to an HTTP-style status code. Errors outside the
// taxonomy are internal errors.
func Status(err error) int {
	switch KindOf(err) {
	case UnknownField, UnknownRelation, ComparisonToNull, AmbiguousExpression,
		ParseException, PaginationError, MissingData, MissingID, MissingType,
		UnknownAttribute, UnknownRelationship:
		return http.StatusBadRequest
	case ClientGeneratedIDNotAllowed:
		return http.StatusForbidden
	case ResourceNotFound:
		return http.StatusNotFound
	case ConflictingType, ConflictingID, ConflictException:
		return http.StatusConflict
	case ValidationException:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
