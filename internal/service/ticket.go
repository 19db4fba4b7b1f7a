package service

import (
	"context"
	"strings"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/clock"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/reservation"
)

// TicketIssuer produces admission tickets for confirmed reservations. It
// only reads from the directory.
type TicketIssuer struct {
	dir    *reservation.Directory
	events *EventService
	clock  clock.Clock
}

// NewTicketIssuer constructs a TicketIssuer.
func NewTicketIssuer(dir *reservation.Directory, events *EventService, clk clock.Clock) *TicketIssuer {
	return &TicketIssuer{dir: dir, events: events, clock: clk}
}

// Issue returns the ticket for reservationID. The caller must own the
// reservation or be an admin, and the reservation must be confirmed.
func (t *TicketIssuer) Issue(ctx context.Context, reservationID string, actor model.Actor) (model.Ticket, error) {
	r, err := t.dir.Get(reservationID)
	if err != nil {
		return model.Ticket{}, err
	}
	if !actor.IsAdmin() && r.ParticipantID != actor.ID {
		return model.Ticket{}, model.E(model.KindForbidden, "ticket.issue", "you can only download your own tickets")
	}
	if r.State != model.StateConfirmed {
		return model.Ticket{}, model.E(model.KindInvalidTransition, "ticket.issue",
			"tickets are only issued for confirmed reservations, this one is %s", r.State)
	}

	e, err := t.events.GetEvent(ctx, r.EventID)
	if err != nil {
		return model.Ticket{}, err
	}

	return model.Ticket{
		ReservationID: r.ID,
		Code:          ticketCode(r.ID),
		EventID:       e.ID,
		EventTitle:    e.Title,
		EventDate:     e.Date,
		Location:      e.Location,
		ParticipantID: r.ParticipantID,
		IssuedAt:      t.clock.Now(),
	}, nil
}

// ticketCode is the first 8 hex digits of the reservation id, upper-cased.
func ticketCode(reservationID string) string {
	code := strings.ToUpper(strings.ReplaceAll(reservationID, "-", ""))
	if len(code) > 8 {
		code = code[:8]
	}
	return "TKT-" + code
}
