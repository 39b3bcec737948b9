// Package apperr holds the error vocabulary shared by the domain packages and
// translated into JSON bodies at the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// NotFoundError names the missing resource and the identifier the caller asked for.
type NotFoundError struct {
	Kind string
	ID   string
}

func NotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// FieldError is one rejected request field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects every rejected field of one request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// Validator accumulates field errors in declaration order.
type Validator struct {
	fields []FieldError
}

// Check records message for field unless ok holds.
func (v *Validator) Check(ok bool, field, message string) {
	if !ok {
		v.fields = append(v.fields, FieldError{Field: field, Message: message})
	}
}

// NotBlank requires a value with at least one non-space character.
func (v *Validator) NotBlank(field, value string) {
	v.Check(strings.TrimSpace(value) != "", field, "must not be blank")
}

// MaxLen bounds the length of value in runes.
func (v *Validator) MaxLen(field, value string, limit int) {
	v.Check(len([]rune(value)) <= limit, field, fmt.Sprintf("size must be between 0 and %d", limit))
}

// Merge prefixes and appends the field errors of a nested validation error.
func (v *Validator) Merge(prefix string, err error) {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return
	}
	for _, f := range ve.Fields {
		v.fields = append(v.fields, FieldError{Field: prefix + "." + f.Field, Message: f.Message})
	}
}

// Err returns nil when every check passed.
func (v *Validator) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}
