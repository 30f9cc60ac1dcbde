package backup

import (
	"fmt"
)

// Error represents errors that occur during backup and sync operations
type Error struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorType represents different types of backup and sync errors
type ErrorType string

const (
	ErrorTypeIO             ErrorType = "IO_ERROR"
	ErrorTypeDecryption     ErrorType = "DECRYPTION_ERROR"
	ErrorTypeCorruptArchive ErrorType = "CORRUPT_ARCHIVE_ERROR"
	ErrorTypeConfiguration  ErrorType = "CONFIGURATION_ERROR"
	ErrorTypeConflict       ErrorType = "CONFLICT_ERROR"
	ErrorTypeValidation     ErrorType = "VALIDATION_ERROR"
	ErrorTypeNetwork        ErrorType = "NETWORK_ERROR"
	ErrorTypeNotFound       ErrorType = "NOT_FOUND_ERROR"
)

// NewError creates a new Error
func NewError(errorType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Common error constructors

func NewIOError(message string, cause error) *Error {
	return NewError(ErrorTypeIO, message, cause)
}

// NewDecryptionError covers AEAD authentication failures. A wrong password,
// a wrong recovery key and corrupted ciphertext all surface the same way.
func NewDecryptionError(message string, cause error) *Error {
	return NewError(ErrorTypeDecryption, message, cause)
}

func NewCorruptArchiveError(message string, cause error) *Error {
	return NewError(ErrorTypeCorruptArchive, message, cause)
}

func NewConfigurationError(message string, cause error) *Error {
	return NewError(ErrorTypeConfiguration, message, cause)
}

func NewConflictError(message string, cause error) *Error {
	return NewError(ErrorTypeConflict, message, cause)
}

func NewValidationError(message string, cause error) *Error {
	return NewError(ErrorTypeValidation, message, cause)
}

func NewNetworkError(message string, cause error) *Error {
	return NewError(ErrorTypeNetwork, message, cause)
}

func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrorTypeNotFound, message, cause)
}

// IsErrorType reports whether err is an *Error of the given type
func IsErrorType(err error, errorType ErrorType) bool {
	if backupErr, ok := err.(*Error); ok {
		return backupErr.Type == errorType
	}
	return false
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	if backupErr, ok := err.(*Error); ok {
		switch backupErr.Type {
		case ErrorTypeNetwork, ErrorTypeIO:
			return true
		default:
			return false
		}
	}
	return false
}

// IsPermanent determines if an error is permanent and should not be retried
func IsPermanent(err error) bool {
	if backupErr, ok := err.(*Error); ok {
		switch backupErr.Type {
		case ErrorTypeValidation, ErrorTypeCorruptArchive,
			ErrorTypeDecryption, ErrorTypeConfiguration:
			return true
		default:
			return false
		}
	}
	return false
}

// FieldError represents a validation failure on a single configuration field
type FieldError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *FieldError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// FieldErrors represents a collection of field validation errors
type FieldErrors []FieldError

// Error implements the error interface
func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d validation errors: %s (and %d more)", len(e), e[0].Error(), len(e)-1)
}

// Add adds a field error to the collection
func (e *FieldErrors) Add(field, message string, value interface{}) {
	*e = append(*e, FieldError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// HasErrors returns true if there are validation errors
func (e FieldErrors) HasErrors() bool {
	return len(e) > 0
}
