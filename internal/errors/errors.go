// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrUnknownCommand      = errors.New("unknown command")
	ErrMacroNotFound       = errors.New("macro not found")
	ErrInvalidSide         = errors.New("side must be buy or sell")
	ErrZeroOrderSize       = errors.New("no funds available or order size is 0")
	ErrUnitsNotSupported   = errors.New("amount units not supported")
	ErrMissingCredentials  = errors.New("missing credentials")
	ErrUnsupportedExchange = errors.New("exchange not supported")
	ErrAlgoCancelled       = errors.New("algorithmic order cancelled")
	ErrNotImplemented      = errors.New("not implemented")
	ErrOrderNotFound       = errors.New("order not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrConnectionFailed    = errors.New("connection failed")
	ErrConfigInvalid       = errors.New("invalid configuration")
)

// AdapterError represents a failed call to an exchange adapter.
type AdapterError struct {
	Exchange string
	Call     string
	Err      error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter error [%s] %s: %v", e.Exchange, e.Call, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError.
func NewAdapterError(exchange, call string, err error) *AdapterError {
	return &AdapterError{
		Exchange: exchange,
		Call:     call,
		Err:      err,
	}
}

// CommandError represents a failure of one action within a command block.
type CommandError struct {
	Exchange string
	Symbol   string
	Command  string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command error [%s:%s] %s: %v", e.Exchange, e.Symbol, e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new CommandError.
func NewCommandError(exchange, symbol, command string, err error) *CommandError {
	return &CommandError{
		Exchange: exchange,
		Symbol:   symbol,
		Command:  command,
		Err:      err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
