// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInsufficientCapital  = errors.New("insufficient capital")
	ErrRiskLimitExceeded    = errors.New("risk limit exceeded")
	ErrNoOpenPosition       = errors.New("no open position")
	ErrDataUnavailable      = errors.New("data unavailable")
	ErrInsufficientHistory  = errors.New("insufficient history")
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrRunCancelled         = errors.New("run cancelled")
	ErrBudgetExhausted      = errors.New("time budget exhausted")
	ErrCircuitBreakerActive = errors.New("daily circuit breaker active")
)

// DataError represents a data-related error for a specific symbol. Portfolio
// runs report these per symbol and continue with the remaining symbols.
type DataError struct {
	Symbol  string
	Message string
	Err     error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s]: %s: %v", e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s]: %s", e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(symbol, message string, err error) *DataError {
	return &DataError{
		Symbol:  symbol,
		Message: message,
		Err:     err,
	}
}

// CapitalError represents a capital shortfall when sizing an order. It is
// always recoverable: the order is skipped and the ledger is untouched.
type CapitalError struct {
	Symbol    string
	Required  float64
	Available float64
}

func (e *CapitalError) Error() string {
	return fmt.Sprintf("insufficient capital [%s]: need %.2f, have %.2f", e.Symbol, e.Required, e.Available)
}

func (e *CapitalError) Unwrap() error {
	return ErrInsufficientCapital
}

// NewCapitalError creates a new CapitalError.
func NewCapitalError(symbol string, required, available float64) *CapitalError {
	return &CapitalError{
		Symbol:    symbol,
		Required:  required,
		Available: available,
	}
}

// ValidationError represents a configuration validation error. Validation
// fails fast before any simulation starts, naming the offending field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// RiskError represents a risk rule refusing to open a position.
type RiskError struct {
	Rule    string
	Current float64
	Limit   float64
	Message string
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("risk violation [%s]: %s (current: %.2f, limit: %.2f)", e.Rule, e.Message, e.Current, e.Limit)
}

func (e *RiskError) Unwrap() error {
	return ErrRiskLimitExceeded
}

// NewRiskError creates a new RiskError.
func NewRiskError(rule string, current, limit float64, message string) *RiskError {
	return &RiskError{
		Rule:    rule,
		Current: current,
		Limit:   limit,
		Message: message,
	}
}

// PredictionError represents a failure from the external prediction provider
// for a single bar. The orchestrator treats it as an implicit HOLD.
type PredictionError struct {
	Symbol    string
	Timestamp string
	Err       error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction error [%s] at %s: %v", e.Symbol, e.Timestamp, e.Err)
}

func (e *PredictionError) Unwrap() error {
	return e.Err
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
