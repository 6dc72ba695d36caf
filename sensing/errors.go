package sensing

import (
	"github.com/pkg/errors"
)

// Error kinds returned by the Manager. Call sites wrap them with context; test with errors.Is.
var (
	// ErrInvalidArgument covers unknown handles or descriptors, missing callbacks, out of range
	// field indices, sub-minimum intervals and bad entry counts.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnsupported is returned for attributes the sensor does not support.
	ErrUnsupported = errors.New("unsupported")
	// ErrInternal is returned when an instance cannot be materialized or its driver rejects the
	// arbitrated configuration.
	ErrInternal = errors.New("internal error")
)

func invalidArgf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

func unsupportedf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrUnsupported, format, args...)
}

// internalErr attaches ErrInternal to a cause while keeping the cause's message.
func internalErr(cause error, format string, args ...interface{}) error {
	return errors.Wrapf(&kindError{kind: ErrInternal, cause: cause}, format, args...)
}

type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}

func (e *kindError) Unwrap() error {
	return e.cause
}
