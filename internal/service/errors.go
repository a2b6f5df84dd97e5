package service

import (
	"errors"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// Field keys used in ValidationError.Fields
const (
	FieldMethod    = "method"
	FieldAmount    = "amount"
	FieldReference = "reference"
	FieldGeneral   = "general"
)

// ValidationError carries one message per invalid input field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records msg for field unless the field already has a message.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// OrNil returns nil when no field failed, so callers can `return v.OrNil()`.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func newGeneralError(msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{FieldGeneral: msg}}
}

// NotFoundError marks a missing record.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// ConflictError marks a request that is well-formed but clashes with the
// current state, e.g. confirming an axis that is already DONE.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

var (
	ErrInvoiceNotFound      = &NotFoundError{Resource: "invoice"}
	ErrAlreadySettled       = &ConflictError{Message: "invoice payment is already confirmed"}
	ErrAlreadyMoved         = &ConflictError{Message: "invoice goods movement is already confirmed"}
	ErrConfirmationInFlight = &ConflictError{Message: "another confirmation for this invoice is in progress"}
)

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// IsNotFound covers both service-level and gorm not-found errors.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) || errors.Is(err, gorm.ErrRecordNotFound)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsTransient is anything not classified above: database, cache or network
// failures the user may retry by hand.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	_, validation := IsValidation(err)
	return !validation && !IsNotFound(err) && !IsConflict(err)
}
