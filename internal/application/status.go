// Package application is the resumable auto-apply state machine.
//
// Valid status graph:
//
//	PENDING ──► IN_PROGRESS ──► NEEDS_REVIEW ──► READY_TO_SUBMIT
//	   │            │ ▲   │           │                │
//	   │            │ └───┼───────────┼────────────────┘ (resume)
//	   │            ├──► SUBMITTED    │
//	   ├────────────┴──► FAILED       │
//	   └────────────┴─────────────────┴──► CANCELLED
//
// SUBMITTED, FAILED and CANCELLED are terminal. Nothing re-enters PENDING.
package application

import "fmt"

// Status values mirror applications.status in PostgreSQL.
type Status string

const (
	StatusPending       Status = "pending"
	StatusInProgress    Status = "in_progress"
	StatusNeedsReview   Status = "needs_review"
	StatusReadyToSubmit Status = "ready_to_submit"
	StatusSubmitted     Status = "submitted"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusPending:       {StatusInProgress, StatusFailed, StatusCancelled},
	StatusInProgress:    {StatusNeedsReview, StatusSubmitted, StatusFailed, StatusCancelled},
	StatusNeedsReview:   {StatusReadyToSubmit, StatusCancelled},
	StatusReadyToSubmit: {StatusInProgress, StatusCancelled},
	// SUBMITTED, FAILED and CANCELLED have no outgoing transitions
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusInProgress, StatusNeedsReview, StatusReadyToSubmit,
		StatusSubmitted, StatusFailed, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted.
func IsTransitionAllowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s Status) bool {
	_, ok := validTransitions[s]
	return !ok
}
