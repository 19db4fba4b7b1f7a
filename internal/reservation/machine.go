package reservation

import (
	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
)

// Effect is what a transition does to the seat ledger.
type Effect int

const (
	// EffectNone keeps the seat held.
	EffectNone Effect = iota
	// EffectRelease returns the seat to the event.
	EffectRelease
)

// Step is the outcome of a legal transition.
type Step struct {
	From   model.ReservationState
	To     model.ReservationState
	Effect Effect
}

type edge struct {
	to     model.ReservationState
	effect Effect
}

// transitions is the complete lifecycle. Anything not listed is illegal,
// which makes refused and canceled terminal.
var transitions = map[model.ReservationState]map[model.Action]edge{
	model.StatePending: {
		model.ActionConfirm: {to: model.StateConfirmed, effect: EffectNone},
		model.ActionRefuse:  {to: model.StateRefused, effect: EffectRelease},
		model.ActionCancel:  {to: model.StateCanceled, effect: EffectRelease},
	},
	model.StateConfirmed: {
		model.ActionCancel: {to: model.StateCanceled, effect: EffectRelease},
	},
}

// Next decides the transition r takes when actor applies action. It never
// mutates r. Actor checks come first so a participant probing someone
// else's reservation learns nothing about its state.
func Next(r model.Reservation, action model.Action, actor model.Actor) (Step, error) {
	switch action {
	case model.ActionConfirm, model.ActionRefuse:
		if !actor.IsAdmin() {
			return Step{}, model.E(model.KindForbidden, "reservation."+string(action),
				"only an admin can %s a reservation", action)
		}
	case model.ActionCancel:
		if !actor.IsAdmin() && actor.ID != r.ParticipantID {
			return Step{}, model.E(model.KindForbidden, "reservation.cancel",
				"you can only cancel your own reservations")
		}
	default:
		return Step{}, model.E(model.KindInvalidTransition, "reservation", "unknown action %q", action)
	}

	e, ok := transitions[r.State][action]
	if !ok {
		return Step{}, model.E(model.KindInvalidTransition, "reservation."+string(action),
			"cannot %s a %s reservation", action, r.State)
	}
	return Step{From: r.State, To: e.to, Effect: e.effect}, nil
}

// Terminal reports whether no action can move a reservation out of s.
func Terminal(s model.ReservationState) bool {
	return len(transitions[s]) == 0
}
