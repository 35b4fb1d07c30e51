package directory

import (
	"errors"
	"fmt"

	"github.com/EO-DataHub/eodhp-directory-services/internal/idalloc"
	"github.com/EO-DataHub/eodhp-directory-services/internal/metadata"
	"github.com/EO-DataHub/eodhp-directory-services/internal/validate"
)

// Kind classifies an operation failure.
type Kind int

const (
	KindUpstream Kind = iota
	KindMalformed
	KindValidation
	KindConflict
	KindNotFound
	KindInUse
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindInUse:
		return "in_use"
	default:
		return "upstream"
	}
}

// Error is the single error type returned by Service operations.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an error of the given kind with a formatted message.
func NewError(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func notFoundf(format string, args ...interface{}) error {
	return NewError(KindNotFound, format, args...)
}

func conflictf(format string, args ...interface{}) error {
	return NewError(KindConflict, format, args...)
}

func inUsef(format string, args ...interface{}) error {
	return NewError(KindInUse, format, args...)
}

func malformedf(format string, args ...interface{}) error {
	return NewError(KindMalformed, format, args...)
}

// KindOf returns the kind of err. Unclassified errors are upstream failures.
func KindOf(err error) Kind {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Kind
	}

	var qErr *metadata.QueryError
	if errors.As(err, &qErr) {
		return KindMalformed
	}
	if validate.IsError(err) {
		return KindValidation
	}
	if errors.Is(err, idalloc.ErrExhausted) {
		return KindConflict
	}
	return KindUpstream
}

// IsKind reports whether err is of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsReferential reports whether err refers to a missing or still referenced entry.
func IsReferential(err error) bool {
	k := KindOf(err)
	return err != nil && (k == KindNotFound || k == KindInUse)
}

// wrap attaches the operation name to err, keeping its kind.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	inner := err
	if dErr, ok := err.(*Error); ok {
		inner = dErr.Err
	}
	return &Error{Kind: KindOf(err), Op: op, Err: inner}
}
