package worker

import (
	"errors"
	"time"

	"github.com/TRA3H/hunter/internal/queue"
)

// Policy is the retry behavior of one task type.
type Policy struct {
	MaxRetries int
	Backoff    time.Duration
	// Unbounded tasks are exempt from the hard time limit.
	Unbounded bool
}

// DefaultPolicies is the retry table for hunter's task types.
func DefaultPolicies() map[queue.Type]Policy {
	return map[queue.Type]Policy{
		queue.TypeScan:        {MaxRetries: 2, Backoff: 60 * time.Second},
		queue.TypeApply:       {MaxRetries: 1, Backoff: 30 * time.Second},
		queue.TypeResume:      {MaxRetries: 1, Backoff: 30 * time.Second},
		queue.TypeOpenBrowser: {MaxRetries: 0, Unbounded: true},
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
