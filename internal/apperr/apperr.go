// Package apperr provides the error taxonomy shared by the pipeline stages
// and the ports they call, so retry/backoff decisions can dispatch on
// class instead of string-matching provider error bodies.
package apperr

import "errors"

// Class classifies an error for the purposes of job retry/backoff policy.
type Class int

const (
	// ClassValidation marks bad input; never retried.
	ClassValidation Class = iota
	// ClassAuthentication marks a bad API key or signature; never retried,
	// surfaced to the operator.
	ClassAuthentication
	// ClassRateLimited marks a provider rate limit; retried after the
	// honoured RetryAfter.
	ClassRateLimited
	// ClassTransient marks network/timeout/5xx failures; retried with
	// exponential backoff up to the stage's attempt cap.
	ClassTransient
	// ClassFatal marks an invariant violation; aborts the pipeline turn.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassAuthentication:
		return "authentication"
	case ClassRateLimited:
		return "rate_limited"
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Retryable reports whether a job failing with this class should be
// returned to pending with backoff rather than moved straight to failed.
func (c Class) Retryable() bool {
	return c == ClassRateLimited || c == ClassTransient
}

// Error is a classified error carrying an optional retry-after hint.
type Error struct {
	Class      Class
	RetryAfter int // seconds; zero means "use the stage's default backoff"
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Class.String()
	}
	return e.Class.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given class.
func New(class Class, err error) *Error {
	return &Error{Class: class, Err: err}
}

// RateLimited wraps err as a rate-limited error with a retry-after hint.
func RateLimited(err error, retryAfterSeconds int) *Error {
	return &Error{Class: ClassRateLimited, RetryAfter: retryAfterSeconds, Err: err}
}

// ClassOf extracts the Class of err, defaulting to ClassTransient for
// unclassified errors so unknown failures still retry rather than die
// silently.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ClassTransient
}

// RetryAfterOf extracts the retry-after hint, if any.
func RetryAfterOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}
