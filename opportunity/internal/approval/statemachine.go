// Package approval holds the approval-request state machine. The machine
// enforces state preconditions only; who may perform an action is checked at
// the HTTP boundary before the machine is consulted.
package approval

import (
	"errors"
	"fmt"
)

const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
	StatusRecalled = "RECALLED"
)

var ErrTerminal = errors.New("approval is in a terminal state")

type Action int

const (
	ActionApprove Action = iota
	ActionReject
	ActionRecall
	ActionEdit
)

func (a Action) String() string {
	switch a {
	case ActionApprove:
		return "approve"
	case ActionReject:
		return "reject"
	case ActionRecall:
		return "recall"
	case ActionEdit:
		return "edit"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status admits no further transitions.
func Terminal(status string) bool {
	switch status {
	case StatusApproved, StatusRejected, StatusRecalled:
		return true
	default:
		return false
	}
}

// Check validates that the action may run from the given status. Every action
// requires PENDING; anything else is a conflict.
func Check(status string, action Action) error {
	if status == StatusPending {
		return nil
	}
	if Terminal(status) {
		return fmt.Errorf("%s %s approval: %w", action, status, ErrTerminal)
	}
	return fmt.Errorf("%s approval in unknown status %q", action, status)
}

// Next returns the status the action transitions to. ActionEdit keeps the
// request PENDING.
func Next(action Action) string {
	switch action {
	case ActionApprove:
		return StatusApproved
	case ActionReject:
		return StatusRejected
	case ActionRecall:
		return StatusRecalled
	default:
		return StatusPending
	}
}
