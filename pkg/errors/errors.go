package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates an unknown queue entry or provider
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeInvalidTransition indicates an illegal queue state-machine edge
	ErrorTypeInvalidTransition ErrorType = "INVALID_TRANSITION"

	// ErrorTypeDuplicateActivePatient indicates the patient already holds an active entry
	ErrorTypeDuplicateActivePatient ErrorType = "DUPLICATE_ACTIVE_PATIENT"

	// ErrorTypeOutOfRange indicates a boost or rating outside its bounds
	ErrorTypeOutOfRange ErrorType = "OUT_OF_RANGE"

	// ErrorTypePartialFailure indicates a referral committed its first step but not its second
	ErrorTypePartialFailure ErrorType = "PARTIAL_FAILURE"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates a conflict with existing data
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from external service
	ErrorTypeExternal ErrorType = "EXTERNAL"
)

// AppError represents an application error.
// ID holds the identifier of the offending entry or provider when one is known.
type AppError struct {
	Type    ErrorType
	Message string
	ID      string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.ID != "" {
		msg = fmt.Sprintf("%s (id=%s)", msg, e.ID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message, id string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		ID:      id,
	}
}

// NewEntryNotFoundError creates the not found error for an unknown queue entry
func NewEntryNotFoundError(entryID string) *AppError {
	return NewNotFoundError("queue entry not found", entryID)
}

// NewInvalidTransitionError creates a new invalid transition error
func NewInvalidTransitionError(message, id string) *AppError {
	return &AppError{
		Type:    ErrorTypeInvalidTransition,
		Message: message,
		ID:      id,
	}
}

// NewDuplicateActivePatientError creates a new duplicate active patient error
func NewDuplicateActivePatientError(patientID, activeEntryID string) *AppError {
	return &AppError{
		Type:    ErrorTypeDuplicateActivePatient,
		Message: fmt.Sprintf("patient already has active queue entry %s", activeEntryID),
		ID:      patientID,
	}
}

// NewOutOfRangeError creates a new out of range error
func NewOutOfRangeError(message, id string) *AppError {
	return &AppError{
		Type:    ErrorTypeOutOfRange,
		Message: message,
		ID:      id,
	}
}

// NewPartialFailureError creates a new partial failure error
func NewPartialFailureError(message, id string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypePartialFailure,
		Message: message,
		ID:      id,
		Err:     err,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message, id string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		ID:      id,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message, id string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: message,
		ID:      id,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// As returns the first AppError in err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err wraps an AppError of the given type
func IsType(err error, t ErrorType) bool {
	appErr, ok := As(err)
	return ok && appErr.Type == t
}

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}
