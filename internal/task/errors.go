package task

import "errors"

// Sentinels for errors.Is. A *ValidationError matches the one named by its Kind.
var (
	ErrEmptyTaskName            = errors.New("empty task name")
	ErrInvalidFrequency         = errors.New("invalid frequency")
	ErrMissingOrInvalidInterval = errors.New("missing or invalid interval")
	ErrInvalidCheckTimes        = errors.New("invalid check times")
)

// ValidationError rejects an intent. It is never retried.
type ValidationError struct {
	Kind   error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return "validation: " + e.Kind.Error()
	}
	return "validation: " + e.Kind.Error() + ": " + e.Detail
}

func (e *ValidationError) Unwrap() error { return e.Kind }

func invalid(kind error, detail string) *ValidationError {
	return &ValidationError{Kind: kind, Detail: detail}
}
