package annotate

import (
	"errors"
	"fmt"
)

var (
	// ErrAttemptsExhausted means every normal attempt for a field was rejected.
	ErrAttemptsExhausted = errors.New("attempt budget exhausted")
	// ErrQuotaBudgetExhausted means the collaborator kept reporting quota
	// exhaustion after every backoff.
	ErrQuotaBudgetExhausted = errors.New("quota retry budget exhausted")
)

// AnnotationError aborts a file. It names the function and the field that
// could not be completed.
type AnnotationError struct {
	Function string
	Field    Field
	Err      error
}

func (e *AnnotationError) Error() string {
	return fmt.Sprintf("failed to define function %s: %s: %v", e.Function, e.Field, e.Err)
}

func (e *AnnotationError) Unwrap() error { return e.Err }
