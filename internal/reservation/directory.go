// Package reservation implements the reservation lifecycle: the state
// machine deciding legal transitions and the Directory that applies them
// against the seat ledger and the durable store.
package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/clock"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/ledger"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/lock"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
	"github.com/google/uuid"
)

// Store is the durable side of the directory. Implementations re-check the
// invariants in their own transaction; the directory treats any error as a
// reason to leave memory untouched.
type Store interface {
	InsertReservation(ctx context.Context, r model.Reservation) error
	UpdateReservationState(ctx context.Context, id string, from, to model.ReservationState, release bool, at time.Time) error
	ListReservations(ctx context.Context) ([]model.Reservation, error)
}

type pairKey struct {
	participantID string
	eventID       string
}

// Directory indexes reservations by id, participant and event, and is the
// only writer of reservation state.
type Directory struct {
	ledger *ledger.Ledger
	store  Store
	clock  clock.Clock
	locks  *lock.Keyed
	logger *slog.Logger

	// mu guards the maps below. It is never held while waiting on a
	// keyed lock or the store.
	mu            sync.RWMutex
	byID          map[string]*model.Reservation
	order         []string
	byParticipant map[string][]string
	byEvent       map[string][]string
	// active maps (participant, event) to the reservation currently
	// holding a seat for that pair.
	active map[pairKey]string
}

// Option configures a Directory.
type Option func(*Directory)

// WithClock overrides the clock used for timestamps.
func WithClock(c clock.Clock) Option {
	return func(d *Directory) { d.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Directory) { d.logger = l }
}

// WithLockTimeout bounds the wait on a reservation's lock.
func WithLockTimeout(timeout time.Duration) Option {
	return func(d *Directory) { d.locks = lock.NewKeyed("reservation", timeout) }
}

// NewDirectory constructs a Directory over led and store.
func NewDirectory(led *ledger.Ledger, store Store, opts ...Option) *Directory {
	d := &Directory{
		ledger:        led,
		store:         store,
		clock:         clock.NewSystem(),
		locks:         lock.NewKeyed("reservation", lock.DefaultTimeout),
		logger:        slog.Default(),
		byID:          make(map[string]*model.Reservation),
		byParticipant: make(map[string][]string),
		byEvent:       make(map[string][]string),
		active:        make(map[pairKey]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Load rebuilds the indexes from the store. Events must already be tracked
// by the ledger; a held count that disagrees with the stored reservations
// is logged.
func (d *Directory) Load(ctx context.Context) error {
	rs, err := d.store.ListReservations(ctx)
	if err != nil {
		return fmt.Errorf("load reservations: %w", err)
	}

	held := make(map[string]int)
	d.mu.Lock()
	for i := range rs {
		r := rs[i]
		d.indexLocked(&r)
		if r.State.HoldsSeat() {
			held[r.EventID]++
		}
	}
	d.mu.Unlock()

	for eventID, n := range held {
		slot, ok := d.ledger.Snapshot(eventID)
		if !ok {
			d.logger.Warn("reservations reference an untracked event", "event_id", eventID, "held", n)
			continue
		}
		if slot.Held != n {
			d.logger.Warn("held seat count disagrees with reservations",
				"event_id", eventID, "ledger_held", slot.Held, "reservations_held", n)
		}
	}
	d.logger.Info("reservations loaded", "count", len(rs))
	return nil
}

// Create reserves a seat for participantID on eventID. The duplicate check,
// the seat reservation, the durable write and the index update happen under
// the event's lock, so concurrent creates for the same event are linearized.
func (d *Directory) Create(ctx context.Context, participantID, eventID string) (model.Reservation, error) {
	if participantID == "" || eventID == "" {
		return model.Reservation{}, model.E(model.KindInvalidInput, "reservation.create", "participant and event are required")
	}

	var created model.Reservation
	err := d.ledger.Do(ctx, eventID, func(tx *ledger.Tx) error {
		key := pairKey{participantID: participantID, eventID: eventID}

		d.mu.RLock()
		existing, dup := d.active[key]
		d.mu.RUnlock()
		if dup {
			return model.E(model.KindDuplicateReservation, "reservation.create",
				"participant already holds reservation %s for this event", existing)
		}

		if err := tx.TryReserveSeat(); err != nil {
			return err
		}

		now := d.clock.Now()
		r := model.Reservation{
			ID:            uuid.NewString(),
			ParticipantID: participantID,
			EventID:       eventID,
			State:         model.StatePending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := d.store.InsertReservation(ctx, r); err != nil {
			return err
		}

		d.mu.Lock()
		d.indexLocked(&r)
		d.mu.Unlock()

		created = r
		return nil
	})
	if err != nil {
		return model.Reservation{}, err
	}

	d.logger.Info("reservation created",
		"reservation_id", created.ID, "event_id", eventID, "participant_id", participantID)
	return created, nil
}

// Transition applies action on behalf of actor. Transitions on one
// reservation are serialized; a seat release and the state change are
// persisted and applied together under the event's lock.
func (d *Directory) Transition(ctx context.Context, reservationID string, action model.Action, actor model.Actor) (model.Reservation, error) {
	release, err := d.locks.Acquire(ctx, reservationID)
	if err != nil {
		return model.Reservation{}, err
	}
	defer release()

	cur, err := d.Get(reservationID)
	if err != nil {
		return model.Reservation{}, err
	}

	step, err := Next(cur, action, actor)
	if err != nil {
		return model.Reservation{}, err
	}

	now := d.clock.Now()
	apply := func() error {
		if err := d.store.UpdateReservationState(ctx, cur.ID, step.From, step.To, step.Effect == EffectRelease, now); err != nil {
			return err
		}
		d.mu.Lock()
		r := d.byID[cur.ID]
		r.State = step.To
		r.UpdatedAt = now
		if !step.To.HoldsSeat() {
			delete(d.active, pairKey{participantID: r.ParticipantID, eventID: r.EventID})
		}
		cur = *r
		d.mu.Unlock()
		return nil
	}

	if step.Effect == EffectRelease {
		err = d.ledger.Do(ctx, cur.EventID, func(tx *ledger.Tx) error {
			if !tx.ReleaseSeat() {
				d.logger.Warn("seat release with no held seats",
					"reservation_id", cur.ID, "event_id", cur.EventID, "from", step.From, "to", step.To)
			}
			return apply()
		})
	} else {
		err = apply()
	}
	if err != nil {
		return model.Reservation{}, err
	}

	d.logger.Info("reservation transitioned",
		"reservation_id", cur.ID, "event_id", cur.EventID,
		"from", step.From, "to", step.To, "actor_id", actor.ID, "actor_role", actor.Role)
	return cur, nil
}

// Get returns a copy of the reservation.
func (d *Directory) Get(reservationID string) (model.Reservation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.byID[reservationID]
	if !ok {
		return model.Reservation{}, model.E(model.KindNotFound, "reservation.get", "reservation %s not found", reservationID)
	}
	return *r, nil
}

// FindByParticipant returns the participant's reservations, oldest first.
func (d *Directory) FindByParticipant(participantID string) []model.Reservation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.collectLocked(d.byParticipant[participantID])
}

// FindByEvent returns the event's reservations, oldest first.
func (d *Directory) FindByEvent(eventID string) []model.Reservation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.collectLocked(d.byEvent[eventID])
}

// List returns every reservation, oldest first.
func (d *Directory) List() []model.Reservation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.collectLocked(d.order)
}

// Held counts the event's reservations that hold a seat.
func (d *Directory) Held(eventID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, id := range d.byEvent[eventID] {
		if d.byID[id].State.HoldsSeat() {
			n++
		}
	}
	return n
}

func (d *Directory) indexLocked(r *model.Reservation) {
	d.byID[r.ID] = r
	d.order = append(d.order, r.ID)
	d.byParticipant[r.ParticipantID] = append(d.byParticipant[r.ParticipantID], r.ID)
	d.byEvent[r.EventID] = append(d.byEvent[r.EventID], r.ID)
	if r.State.HoldsSeat() {
		d.active[pairKey{participantID: r.ParticipantID, eventID: r.EventID}] = r.ID
	}
}

func (d *Directory) collectLocked(ids []string) []model.Reservation {
	out := make([]model.Reservation, 0, len(ids))
	for _, id := range ids {
		out = append(out, *d.byID[id])
	}
	sortByCreation(out)
	return out
}

// sortByCreation orders by CreatedAt and keeps insertion order for ties.
func sortByCreation(rs []model.Reservation) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].CreatedAt.Before(rs[j].CreatedAt)
	})
}
