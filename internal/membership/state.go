// Package membership implements the membership lifecycle state machine.
//
//	REQUESTED --approve--> APPROVED --ban--> BANNED
//	    |                     ^                 |
//	    +--reject--> REJECTED +-----unban-------+
//
// REJECTED is terminal. A user who is rejected and asks again gets a new membership record.
package membership

import (
	"errors"
	"fmt"
	"strings"

	"github.com/temple4/community-core/internal/authz"
)

// Action is an operation an authorized actor applies to a membership.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionBan     Action = "ban"
	ActionUnban   Action = "unban"
)

var (
	// ErrInvalidTransition is returned when an action is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid membership transition")
	// ErrUnknownAction is returned by ParseAction for names outside the Action constants.
	ErrUnknownAction = errors.New("unknown membership action")
)

type transition struct {
	from       authz.MembershipStatus
	to         authz.MembershipStatus
	permission authz.Permission
}

var transitions = map[Action]transition{
	ActionApprove: {from: authz.StatusRequested, to: authz.StatusApproved, permission: authz.PermApproveMembership},
	ActionReject:  {from: authz.StatusRequested, to: authz.StatusRejected, permission: authz.PermApproveMembership},
	ActionBan:     {from: authz.StatusApproved, to: authz.StatusBanned, permission: authz.PermBanMembers},
	ActionUnban:   {from: authz.StatusBanned, to: authz.StatusApproved, permission: authz.PermBanMembers},
}

// InitialStatus is the status of a freshly created membership.
const InitialStatus = authz.StatusRequested

// ParseAction converts a raw action name (case-insensitive) into an Action.
func ParseAction(name string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := transitions[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	return a, nil
}

// Transition returns the status reached by applying action to a membership in status from.
func Transition(from authz.MembershipStatus, action Action) (authz.MembershipStatus, error) {
	t, ok := transitions[action]
	if !ok {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}
	if t.from != from {
		return "", fmt.Errorf("%w: cannot %s a membership in status %s", ErrInvalidTransition, action, from)
	}
	return t.to, nil
}

// RequiredPermission is the permission an actor needs to apply action.
func RequiredPermission(action Action) (authz.Permission, error) {
	t, ok := transitions[action]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return t.permission, nil
}

// IsTerminal reports whether no action can move a membership out of status.
func IsTerminal(status authz.MembershipStatus) bool {
	for _, t := range transitions {
		if t.from == status {
			return false
		}
	}
	return true
}

// AllowedActions lists the actions that may be applied from status.
func AllowedActions(status authz.MembershipStatus) []Action {
	var out []Action
	for _, a := range []Action{ActionApprove, ActionReject, ActionBan, ActionUnban} {
		if transitions[a].from == status {
			out = append(out, a)
		}
	}
	return out
}
