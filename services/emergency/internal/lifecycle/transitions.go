// Package lifecycle owns emergency alert status changes: which transitions
// exist, who may fire them and which audit fields each one sets.
package lifecycle

import (
	"strings"

	"carelink/internal/policy"
	"carelink/pkg/apperr"
	"carelink/pkg/domain"
)

// Event names a requested transition.
type Event string

const (
	EventCreate      Event = "create"
	EventAcknowledge Event = "acknowledge"
	EventBegin       Event = "begin"
	EventResolve     Event = "resolve"
	EventCancel      Event = "cancel"
)

// ParseEvent accepts the transition names exposed over HTTP. create is not
// a transition of an existing alert.
func ParseEvent(raw string) (Event, bool) {
	ev := Event(strings.ToLower(strings.TrimSpace(raw)))
	switch ev {
	case EventAcknowledge, EventBegin, EventResolve, EventCancel:
		return ev, true
	}
	return "", false
}

var transitions = map[domain.AlertStatus]map[Event]domain.AlertStatus{
	domain.StatusPending: {
		EventAcknowledge: domain.StatusAcknowledged,
		EventResolve:     domain.StatusResolved,
		EventCancel:      domain.StatusCancelled,
	},
	domain.StatusAcknowledged: {
		EventBegin:   domain.StatusInProgress,
		EventResolve: domain.StatusResolved,
		EventCancel:  domain.StatusCancelled,
	},
	domain.StatusInProgress: {
		EventResolve: domain.StatusResolved,
		EventCancel:  domain.StatusCancelled,
	},
}

// Next returns the status ev leads to from the current status.
func Next(current domain.AlertStatus, ev Event) (domain.AlertStatus, error) {
	if to, ok := transitions[current][ev]; ok {
		return to, nil
	}
	return "", apperr.New(apperr.InvalidTransition, "transition not allowed from current status").
		With("current", string(current)).
		With("requested", string(ev))
}

// actionFor is the policy action guarding ev. Acknowledging is open to any
// nurse so unassigned alerts can be picked up; every other step needs the
// assigned nurse.
func actionFor(ev Event) policy.Action {
	if ev == EventAcknowledge {
		return policy.AcknowledgeAlert
	}
	return policy.MutateOwnAlertStatus
}
