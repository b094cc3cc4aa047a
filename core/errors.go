package core

import "github.com/pkg/errors"

var (
	// ErrNotFound is the root of every "object not found" error; domain packages wrap it
	// so that the API can map them to 404 without knowing each package.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is the root of every permission error (403).
	ErrForbidden = errors.New("permission denied")
	// ErrConflict is the root of every state/uniqueness conflict (409).
	ErrConflict = errors.New("conflict")
)

// DomainError is a sentinel error belonging to one of the families above.
type DomainError struct {
	family error
	msg    string
}

func (e *DomainError) Error() string { return e.msg }

// Is makes errors.Is(err, core.ErrNotFound) hold for every error of the family.
func (e *DomainError) Is(target error) bool { return target == e.family }

func NewNotFoundError(msg string) error  { return &DomainError{family: ErrNotFound, msg: msg} }
func NewForbiddenError(msg string) error { return &DomainError{family: ErrForbidden, msg: msg} }
func NewConflictError(msg string) error  { return &DomainError{family: ErrConflict, msg: msg} }

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error {
	return err.Err
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
