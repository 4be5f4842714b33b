package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeMalformedDefinition = "MALFORMED_DEFINITION"
	ErrCodeUnresolvedEntry     = "UNRESOLVED_ENTRY"
	ErrCodeDuplicateElement    = "DUPLICATE_ELEMENT"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeExpression          = "EXPRESSION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeStore               = "STORE_ERROR"
	ErrCodeFetch               = "FETCH_ERROR"
	ErrCodeExplain             = "EXPLAIN_ERROR"
)

// FlowError is the structured error type for all flowlens operations.
type FlowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Element string         `json:"element,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FlowError) Error() string {
	if e.Element != "" {
		return fmt.Sprintf("[%s] element %s: %s", e.Code, e.Element, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FlowError.
func NewError(code, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// NewErrorf creates a new FlowError with a formatted message.
func NewErrorf(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithElement attaches an element name to the error.
func (e *FlowError) WithElement(name string) *FlowError {
	e.Element = name
	return e
}

// WithCause attaches an underlying cause.
func (e *FlowError) WithCause(err error) *FlowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FlowError) WithDetails(details map[string]any) *FlowError {
	e.Details = details
	return e
}

// IsCode reports whether err is (or wraps) a FlowError with the given code.
func IsCode(err error, code string) bool {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// IsFatal reports whether err aborts an analysis: the definition could not be
// normalized or its entry could not be resolved.
func IsFatal(err error) bool {
	return IsCode(err, ErrCodeMalformedDefinition) ||
		IsCode(err, ErrCodeUnresolvedEntry) ||
		IsCode(err, ErrCodeDuplicateElement)
}
