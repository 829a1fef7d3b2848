// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors
var (
	ErrMissingSymbols     = errors.New("either symbols or a symbols file must be provided")
	ErrUnknownParameter   = errors.New("unknown parameter")
	ErrInvalidType        = errors.New("invalid parameter type")
	ErrInvalidChoice      = errors.New("value not among allowed choices")
	ErrUnknownCategory    = errors.New("unknown category")
	ErrUnknownSymbol      = errors.New("symbol not in portfolio")
	ErrUnknownRiskMeasure = errors.New("unknown risk measure")
	ErrUnsupportedFormat  = errors.New("unsupported file format")
	ErrNoData             = errors.New("no data returned")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrNotConfigured      = errors.New("not configured")
	ErrRateLimited        = errors.New("rate limited")
	ErrTimeout            = errors.New("operation timed out")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrDataNotFound       = errors.New("data not found")
	ErrDatabaseError      = errors.New("database error")
	ErrOptimizationFailed = errors.New("optimization failed")
)

// ProviderError represents a non-2xx response or transport failure from a data provider.
type ProviderError struct {
	Provider string
	Endpoint string
	Status   int
	Body     string
	Err      error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s error [%s]: %v", e.Provider, e.Endpoint, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s error [%s]: status %d: %s", e.Provider, e.Endpoint, e.Status, e.Body)
	default:
		return fmt.Sprintf("%s error [%s]: status %d", e.Provider, e.Endpoint, e.Status)
	}
}

func (e *ProviderError) Unwrap() error {
	if e.Status == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return e.Err
}

// Temporary reports whether the request may succeed on retry.
func (e *ProviderError) Temporary() bool {
	if e.Err != nil {
		return true
	}
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, endpoint string, status int, body string) *ProviderError {
	if len(body) > 512 {
		body = body[:512]
	}
	return &ProviderError{
		Provider: provider,
		Endpoint: endpoint,
		Status:   status,
		Body:     body,
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

// ParameterError represents a rejected portfolio parameter value.
type ParameterError struct {
	Name  string
	Value interface{}
	Err   error
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("parameter %s=%v: %v", e.Name, e.Value, e.Err)
}

func (e *ParameterError) Unwrap() error {
	return e.Err
}

// NewParameterError creates a new ParameterError.
func NewParameterError(name string, value interface{}, err error) *ParameterError {
	return &ParameterError{
		Name:  name,
		Value: value,
		Err:   err,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// OptimizationError represents a failed or non-converged optimizer run.
type OptimizationError struct {
	Method string
	Reason string
	Err    error
}

func (e *OptimizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("optimization error [%s]: %s: %v", e.Method, e.Reason, e.Err)
	}
	return fmt.Sprintf("optimization error [%s]: %s", e.Method, e.Reason)
}

func (e *OptimizationError) Unwrap() error {
	if e.Err == nil {
		return ErrOptimizationFailed
	}
	return e.Err
}

// NewOptimizationError creates a new OptimizationError.
func NewOptimizationError(method, reason string, err error) *OptimizationError {
	return &OptimizationError{
		Method: method,
		Reason: reason,
		Err:    err,
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

// IsTemporary reports whether err carries a retryable provider failure.
func IsTemporary(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Temporary()
	}
	return false
}
