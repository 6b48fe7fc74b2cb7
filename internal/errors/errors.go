// Package errors provides structured error types for vector layer import and query.
// All errors include a category, code and message so callers can tell format
// problems, content validation failures, store failures and missing names apart.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by kind of failure.
type ErrorCategory string

const (
	ErrCategoryFormat     ErrorCategory = "FORMAT"
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryStore      ErrorCategory = "STORE"
	ErrCategoryNotFound   ErrorCategory = "NOT_FOUND"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Format codes
	CodeNotAnArchive        = "NOT_AN_ARCHIVE"
	CodeOpenFailed          = "OPEN_FAILED"
	CodeNoLayers            = "NO_LAYERS"
	CodeMultipleLayers      = "MULTIPLE_LAYERS"
	CodeMissingCRS          = "MISSING_CRS"
	CodeUnsupportedGeometry = "UNSUPPORTED_GEOMETRY"
	CodeUnsupportedField    = "UNSUPPORTED_FIELD"
	CodeUnknownEncoding     = "UNKNOWN_ENCODING"

	// Validation codes
	CodeMissingGeometry  = "MISSING_GEOMETRY"
	CodeGeometryMismatch = "GEOMETRY_MISMATCH"
	CodeInvalidValue     = "INVALID_VALUE"
	CodeInvalidArgument  = "INVALID_ARGUMENT"

	// Store codes
	CodeDDLFailed       = "DDL_FAILED"
	CodeStatementFailed = "STATEMENT_FAILED"
	CodeTxFailed        = "TX_FAILED"

	// Not-found codes
	CodeFieldNotFound  = "FIELD_NOT_FOUND"
	CodeLayerNotFound  = "LAYER_NOT_FOUND"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// DetailFeature is the details key holding the 1-based sequence number of
// the feature a validation error refers to.
const DetailFeature = "feature"

// LayerError is the structured error type used throughout the system.
type LayerError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *LayerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *LayerError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *LayerError) Is(target error) bool {
	var t *LayerError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new LayerError.
func New(category ErrorCategory, code, message string) *LayerError {
	return &LayerError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new LayerError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *LayerError {
	return &LayerError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *LayerError) WithDetails(details map[string]interface{}) *LayerError {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a LayerError.
func GetCategory(err error) ErrorCategory {
	var le *LayerError
	if errors.As(err, &le) {
		return le.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a LayerError.
func GetCode(err error) string {
	var le *LayerError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// FeatureOf returns the feature sequence number recorded on a validation error.
func FeatureOf(err error) (int64, bool) {
	var le *LayerError
	if !errors.As(err, &le) || le.Details == nil {
		return 0, false
	}
	n, ok := le.Details[DetailFeature].(int64)
	return n, ok
}

func IsFormat(err error) bool     { return GetCategory(err) == ErrCategoryFormat }
func IsValidation(err error) bool { return GetCategory(err) == ErrCategoryValidation }
func IsStore(err error) bool      { return GetCategory(err) == ErrCategoryStore }
func IsNotFound(err error) bool   { return GetCategory(err) == ErrCategoryNotFound }

// Convenience constructors for common errors.

func NewFormatError(code, message string) *LayerError {
	return New(ErrCategoryFormat, code, message)
}

// NewFeatureError creates a validation error pointing at one source feature.
func NewFeatureError(code string, feature int64, message string) *LayerError {
	return New(ErrCategoryValidation, code, message).WithDetails(map[string]interface{}{
		DetailFeature: feature,
	})
}

func NewValidationError(code, message string) *LayerError {
	return New(ErrCategoryValidation, code, message)
}

func NewStoreError(code, message string, cause error) *LayerError {
	return Wrap(ErrCategoryStore, code, message, cause)
}

func NewNotFoundError(code, message string) *LayerError {
	return New(ErrCategoryNotFound, code, message)
}

func NewInternalError(message string, cause error) *LayerError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
