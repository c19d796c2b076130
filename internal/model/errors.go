package model

// ValidationError marks a client-input failure. The API layer maps it to
// VALIDATION_ERROR / 400; it is never retried.
type ValidationError struct {
	Err error
}

// Invalid wraps err as a ValidationError.
func Invalid(err error) *ValidationError {
	return &ValidationError{Err: err}
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }
