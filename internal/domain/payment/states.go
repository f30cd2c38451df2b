package payment

import (
	"fmt"
	"time"

	apperrors "pledgepay/pkg/errors"
)

// Status is the payment settlement state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusCreated    Status = "CREATED"
	StatusAuthorized Status = "AUTHORIZED"
	StatusCaptured   Status = "CAPTURED"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// statusRank totally orders the non-failed statuses. The broker delivers
// notifications with no ordering guarantee, so a delayed AUTHORIZED arriving
// after CAPTURED must not roll the payment back; any move to a strictly lower
// rank is rejected. Failed sits outside the order and is handled separately.
var statusRank = map[Status]int{
	StatusPending:    0,
	StatusCreated:    1,
	StatusAuthorized: 2,
	StatusCaptured:   3,
	StatusCompleted:  4,
}

// validTransitions is the explicit allowed-successor set for each status.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusCreated},
	StatusCreated:    {StatusAuthorized},
	StatusAuthorized: {StatusCaptured},
	StatusCaptured:   {StatusCompleted},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// IsTerminal reports whether no further transitions are permitted from s
// (metadata annotation excepted).
func IsTerminal(s Status) bool {
	return s == StatusCaptured || s == StatusCompleted || s == StatusFailed
}

// ValidNextStates returns the allowed successors of s.
func ValidNextStates(s Status) []Status {
	return validTransitions[s]
}

// CanTransition reports whether moving from current to target is legal:
// the same status is always allowed (idempotent replay of a duplicate
// notification), Failed is allowed from any non-terminal status, and
// otherwise target must be an allowed successor with rank(target) >=
// rank(current).
func CanTransition(current, target Status) bool {
	if current == target {
		return true
	}
	if target == StatusFailed {
		return !IsTerminal(current)
	}

	currentRank, okCur := statusRank[current]
	targetRank, okTgt := statusRank[target]
	if !okCur || !okTgt {
		return false
	}
	if targetRank < currentRank {
		return false
	}

	for _, allowed := range validTransitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// TransitionError reports a rejected status move. It wraps
// settlement_errors.ErrInvalidTransition so callers can match with errors.Is.
type TransitionError struct {
	PaymentID string
	From      Status
	To        Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("payment %s: rejected transition %s -> %s", e.PaymentID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return apperrors.ErrInvalidTransition
}

// Transition moves the payment to target after validating the move.
// On rejection the payment is left untouched and a *TransitionError is
// returned; callers route that to failure handling instead of retrying.
func (p *Payment) Transition(target Status) error {
	if p.Status == target {
		return nil
	}
	if !CanTransition(p.Status, target) {
		return &TransitionError{PaymentID: p.PaymentID, From: p.Status, To: target}
	}
	p.Status = target
	p.UpdatedAt = time.Now()
	return nil
}
