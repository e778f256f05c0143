// Package lifecycle applies booking status transitions.  The transition
// table lives here; the Service runs each transition inside a store
// transaction that re-checks capacity when seats start counting.
package lifecycle

import "github.com/edjs/theatre-booking/internal/model"

// Action names an admin or customer operation on a booking.
type Action string

const (
	ActionConfirm   Action = "confirm"
	ActionApprove   Action = "approve"
	ActionReject    Action = "reject"
	ActionUnconfirm Action = "unconfirm"
	ActionCancel    Action = "cancel"
	ActionComplete  Action = "complete"
)

type transition struct {
	from []model.Status
	to   model.Status
}

var table = map[Action]transition{
	ActionConfirm:   {from: []model.Status{model.StatusPending}, to: model.StatusConfirmed},
	ActionApprove:   {from: []model.Status{model.StatusAwaitingVerification}, to: model.StatusConfirmed},
	ActionReject:    {from: []model.Status{model.StatusPending, model.StatusAwaitingVerification}, to: model.StatusRejected},
	ActionUnconfirm: {from: []model.Status{model.StatusConfirmed}, to: model.StatusPending},
	ActionCancel:    {from: []model.Status{model.StatusPending, model.StatusAwaitingVerification, model.StatusConfirmed}, to: model.StatusCancelled},
	ActionComplete:  {from: []model.Status{model.StatusConfirmed}, to: model.StatusCompleted},
}

// ParseAction maps a route segment onto an Action.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	_, ok := table[a]
	return a, ok
}

// Next returns the status a booking in from reaches by a.  It returns a
// *model.TransitionError when a is not allowed from from.
func Next(from model.Status, a Action) (model.Status, error) {
	t, ok := table[a]
	if !ok {
		return from, &model.TransitionError{From: from, Action: string(a)}
	}
	for _, s := range t.from {
		if s == from {
			return t.to, nil
		}
	}
	return from, &model.TransitionError{From: from, Action: string(a)}
}

// Allowed lists the actions available from status s, in a stable order.
func Allowed(s model.Status) []Action {
	out := []Action{}
	for _, a := range []Action{ActionConfirm, ActionApprove, ActionReject, ActionUnconfirm, ActionCancel, ActionComplete} {
		if _, err := Next(s, a); err == nil {
			out = append(out, a)
		}
	}
	return out
}

// admits reports whether reaching to from from starts counting seats that
// were not counted before.
func admits(from, to model.Status) bool {
	return to.ConsumesCapacity() && !from.ConsumesCapacity()
}
