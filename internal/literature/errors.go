package literature

import (
	"errors"

	"github.com/lehigh-university-libraries/papershelf/internal/imagemeta"
	"github.com/lehigh-university-libraries/papershelf/internal/storage"
	"github.com/lehigh-university-libraries/papershelf/internal/tags"
)

// Error kinds surfaced to clients. Match them with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrAnalysisFailure = errors.New("analysis failed")
)

// Error carries a client-facing kind, a message safe to show, and the underlying cause.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// translate maps store, tag and normalizer failures onto the client taxonomy.
// Anything unrecognized is returned unchanged and treated as internal by callers.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return newError(ErrNotFound, "Literature not found", err)
	case errors.Is(err, storage.ErrInvalidName):
		return newError(ErrInvalidArgument, "Invalid filename", err)
	case errors.Is(err, imagemeta.ErrDuplicateCover),
		errors.Is(err, imagemeta.ErrMissingFilename),
		errors.Is(err, tags.ErrEmptyTag):
		return newError(ErrInvalidArgument, err.Error(), err)
	}
	return err
}
