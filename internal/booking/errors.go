package booking

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDateNotSelectable    = errors.New("date is not selectable")
	ErrDateRequired         = errors.New("select a date first")
	ErrSlotUnavailable      = errors.New("time slot is not available")
	ErrSubmissionInProgress = errors.New("submission already in progress")
)

// ValidationError blocks a submit. Input is left untouched.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid fields: "+strings.Join(e.Invalid, ", "))
	}
	if len(parts) == 0 {
		return "validation failed"
	}
	return strings.Join(parts, "; ")
}

// UserMessage is the warning shown next to the form.
func (e *ValidationError) UserMessage() string {
	if len(e.Missing) > 0 {
		return "Please fill in all required fields"
	}
	return "Please check the highlighted fields"
}

// SubmissionError means the submitter failed; the visitor may retry.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit booking: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsSubmission reports whether err is a *SubmissionError.
func IsSubmission(err error) bool {
	var s *SubmissionError
	return errors.As(err, &s)
}
