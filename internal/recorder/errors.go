package recorder

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Write once a recorder has been closed.
	ErrClosed = errors.New("recorder is already closed")

	// ErrConfiguration matches every *ConfigError.
	ErrConfiguration = errors.New("invalid recorder configuration")

	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("invalid datum")

	errNotDir = errors.New("not a directory")
)

// ConfigError reports format parameters or a file extension that a
// recorder cannot be opened with.
type ConfigError struct {
	Field string
	Msg   string
}

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// ValidationKind names the constraint a datum failed.
type ValidationKind string

const (
	KindDimension     ValidationKind = "dimension"
	KindDtype         ValidationKind = "dtype"
	KindChannels      ValidationKind = "channels"
	KindColumns       ValidationKind = "columns"
	KindSerialization ValidationKind = "serialization"
)

// ValidationError reports a datum that does not match the recorder's
// format parameters. The recorder stays open and nothing was written.
type ValidationError struct {
	Kind ValidationKind
	Msg  string
	Err  error
}

func validationErrorf(kind ValidationKind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s mismatch: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s mismatch: %s", e.Kind, e.Msg)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IOError wraps a filesystem or codec failure. After a failed write the
// file may hold partial data.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// KindOf returns the validation kind of err, or "" if err is not a
// *ValidationError.
func KindOf(err error) ValidationKind {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Kind
	}
	return ""
}
