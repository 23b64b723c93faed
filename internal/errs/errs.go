// Package errs defines the domain error kinds observable across the engine
// (spec.md §7). Errors are plain Go values wrapped with fmt.Errorf/%w;
// callers classify them with errors.Is against the sentinels below, and an
// HTTP adapter (out of scope here) would map Kind to a status code.
package errs

import "errors"

// Kind is the coarse category an HTTP adapter would map to a status code.
type Kind string

const (
	KindInvalidRequest    Kind = "invalid_request"
	KindNotFound          Kind = "not_found"
	KindAlreadyExists     Kind = "already_exists"
	KindSchemaNotFound    Kind = "schema_not_found"
	KindSchemaValidation  Kind = "schema_validation"
	KindConfigError       Kind = "config_error"
	KindStorageError      Kind = "storage_error"
	KindForbidden         Kind = "forbidden"
	KindUnauthorized      Kind = "unauthorized"
)

// Error is a domain error carrying a Kind for classification plus the
// underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a classified domain error.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

var (
	// ErrTopicAlreadyExists is returned by Topic Store createTopic when the
	// config file already exists.
	ErrTopicAlreadyExists = New(KindAlreadyExists, "topic already exists", nil)
	// ErrTopicNotFound is returned when a topic name does not resolve to a
	// known topic.
	ErrTopicNotFound = New(KindNotFound, "topic not found", nil)
	// ErrConsumerNotFound is returned when a consumer id does not resolve.
	ErrConsumerNotFound = New(KindNotFound, "consumer not found", nil)
	// ErrIllegalArgument covers malformed/empty/invalid-shape arguments
	// (empty publish batch, non-additive schema update, duplicate eventType).
	ErrIllegalArgument = New(KindInvalidRequest, "illegal argument", nil)
)
