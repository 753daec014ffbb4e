package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrApplicationNotFound is returned when an application ID does not exist.
	ErrApplicationNotFound = errors.New("application not found")

	// ErrInvalidTransition is returned for a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrValidation is the sentinel every ValidationErrors unwraps to.
	ErrValidation = errors.New("validation failed")
)

// InvalidTransitionError names the rejected transition.
type InvalidTransitionError struct {
	ApplicationID string
	From          Status
	To            Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("application %s: cannot move from %s to %s", e.ApplicationID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// ValidationErrors maps a payload field name to a human-readable message.
// It is returned whole; validation never stops at the first failure.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Unwrap() error {
	return ErrValidation
}

func (v ValidationErrors) add(field, msg string) {
	if _, exists := v[field]; !exists {
		v[field] = msg
	}
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the application does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrApplicationNotFound)
}
