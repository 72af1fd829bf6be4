package models

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistence marks a failure to read or write durable state.
	ErrPersistence = errors.New("persistence failure")
	// ErrUndeclaredVariable is returned when assigning a variable that was not
	// declared in configuration.
	ErrUndeclaredVariable = errors.New("variable is not declared")
)

// ConfigurationError reports a malformed action: unknown key, missing field or
// wrong value type.
type ConfigurationError struct {
	Path ExecutionPath
	Err  error
}

// Configf builds a ConfigurationError for path.
func Configf(path ExecutionPath, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Path: path, Err: fmt.Errorf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%v\nTrace: %s", e.Err, e.Path)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// EvaluationError reports an expression that could not be evaluated.
type EvaluationError struct {
	Path ExecutionPath
	Expr string
	Err  error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluating %q: %v\nTrace: %s", e.Expr, e.Err, e.Path)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
