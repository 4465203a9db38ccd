// Package errors provides structured error handling for hostsweep operations.
// It defines error codes, error types, and utilities for creating
// and classifying errors with context and structured information.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"

	// Scanning errors.
	CodeDependencyMissing ErrorCode = "DEPENDENCY_MISSING"
	CodeTargetInvalid     ErrorCode = "TARGET_INVALID"
	CodeEngineFailure     ErrorCode = "ENGINE_FAILURE"

	// Output errors.
	CodeRenderDegraded ErrorCode = "RENDER_DEGRADED"
	CodeOutput         ErrorCode = "OUTPUT"

	// Storage errors.
	CodeStorage ErrorCode = "STORAGE"
)

// Process exit codes returned by the CLI.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitInvalidTarget     = 2
	ExitDependencyMissing = 3
)

// ScanError represents an error that occurred during scanning operations.
type ScanError struct {
	Code        ErrorCode
	Message     string
	Target      string
	Remediation string
	Cause       error
	Context     map[string]interface{}
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Target != "" {
		msg = fmt.Sprintf("%s (target: %s)", msg, e.Target)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *ScanError) WithContext(key string, value interface{}) *ScanError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Context: make(map[string]interface{}),
	}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// WrapScanErrorWithTarget wraps an error with target information.
func WrapScanErrorWithTarget(code ErrorCode, message, target string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// StorageError represents scan history persistence errors.
type StorageError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation: %s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// WrapStorageError wraps an existing error as a storage error.
func WrapStorageError(operation, message string, err error) *StorageError {
	return &StorageError{
		Code:      CodeStorage,
		Message:   message,
		Operation: operation,
		Cause:     err,
	}
}

// Utility functions for common error operations

// GetCode extracts the error code from an error chain if it carries one.
func GetCode(err error) ErrorCode {
	var scanErr *ScanError
	if stderrors.As(err, &scanErr) {
		return scanErr.Code
	}
	var cfgErr *ConfigError
	if stderrors.As(err, &cfgErr) {
		return cfgErr.Code
	}
	var storageErr *StorageError
	if stderrors.As(err, &storageErr) {
		return storageErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// IsFatal determines if an error must abort the process immediately.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeDependencyMissing, CodeConfiguration:
		return true
	default:
		return false
	}
}

// Remediation returns the remediation hint attached to an error, if any.
func Remediation(err error) string {
	var scanErr *ScanError
	if stderrors.As(err, &scanErr) {
		return scanErr.Remediation
	}
	return ""
}

// ExitCode maps an error to the process exit code used by the CLI.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch GetCode(err) {
	case CodeDependencyMissing:
		return ExitDependencyMissing
	case CodeTargetInvalid:
		return ExitInvalidTarget
	default:
		return ExitFailure
	}
}

// Common error creation functions

// ErrDependencyMissing creates an error for a required external tool that is absent.
func ErrDependencyMissing(dependency, remediation string, cause error) *ScanError {
	e := WrapScanError(CodeDependencyMissing,
		fmt.Sprintf("required dependency %q is not available", dependency), cause)
	e.Remediation = remediation
	return e.WithContext("dependency", dependency)
}

// ErrInvalidTarget creates an error for invalid scan targets.
func ErrInvalidTarget(target, reason string) *ScanError {
	return NewScanErrorWithTarget(CodeTargetInvalid, "invalid target specification: "+reason, target)
}

// ErrEngineFailure creates an error for scan engine failures after launch.
func ErrEngineFailure(target string, err error) *ScanError {
	return WrapScanErrorWithTarget(CodeEngineFailure, "scan engine failed", target, err)
}

// ErrScanTimeout creates an error for scans that exceeded their deadline.
func ErrScanTimeout(target string, err error) *ScanError {
	return WrapScanErrorWithTarget(CodeTimeout, "scan operation timed out", target, err)
}

// ErrRenderDegraded creates a warning-level error for a missing output capability.
func ErrRenderDegraded(capability, reason string) *ScanError {
	return NewScanError(CodeRenderDegraded, fmt.Sprintf("%s unavailable, using fallback: %s", capability, reason)).
		WithContext("capability", capability)
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Invalid configuration value", field, value)
}

// ErrConfigMissing creates an error for missing required configuration.
func ErrConfigMissing(field string) *ConfigError {
	return NewConfigFieldError(CodeConfiguration, "Required configuration field missing", field, nil)
}
