package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Store backed by PostgreSQL through pgx. It uses pgx
// directly (no ORM) and takes row-level locks on the event row for every
// write that touches the held-seat counter.
type Postgres struct {
	db *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres constructs a Postgres store.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// CreateEvent inserts a new event.
func (r *Postgres) CreateEvent(ctx context.Context, e model.Event) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO events (id, title, description, location, date, capacity, held_seats, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9)`,
		e.ID, e.Title, e.Description, e.Location, e.Date, e.Capacity, e.Status, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.E(model.KindInvalidInput, "postgres.create_event", "event %s already exists", e.ID)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// UpdateEvent writes the descriptive fields of an event and, with
// withCapacity, its capacity. The row is locked so the held check and the
// write see the same held_seats.
func (r *Postgres) UpdateEvent(ctx context.Context, e model.Event, withCapacity bool) error {
	const op = "postgres.update_event"
	return r.withTx(ctx, func(tx pgx.Tx) error {
		var held, capacity int
		err := tx.QueryRow(ctx,
			`SELECT held_seats, capacity FROM events WHERE id = $1 FOR UPDATE`,
			e.ID,
		).Scan(&held, &capacity)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return eventNotFound(op, e.ID)
			}
			return fmt.Errorf("lock event row: %w", err)
		}
		if withCapacity {
			if e.Capacity < held {
				return belowHeld(op, e.Capacity, held)
			}
			capacity = e.Capacity
		}
		if _, err := tx.Exec(ctx,
			`UPDATE events
			 SET title = $2, description = $3, location = $4, date = $5, capacity = $6, updated_at = $7
			 WHERE id = $1`,
			e.ID, e.Title, e.Description, e.Location, e.Date, capacity, e.UpdatedAt,
		); err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		return nil
	})
}

// SetEventStatus changes the event status.
func (r *Postgres) SetEventStatus(ctx context.Context, eventID string, status model.EventStatus, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE events SET status = $2, updated_at = $3 WHERE id = $1`,
		eventID, status, at,
	)
	if err != nil {
		return fmt.Errorf("set event status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return eventNotFound("postgres.set_status", eventID)
	}
	return nil
}

// SetCapacity locks the event row, compares against held_seats and writes
// the new capacity in the same transaction.
func (r *Postgres) SetCapacity(ctx context.Context, eventID string, capacity int, at time.Time) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		var held int
		err := tx.QueryRow(ctx,
			`SELECT held_seats FROM events WHERE id = $1 FOR UPDATE`,
			eventID,
		).Scan(&held)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return eventNotFound("postgres.set_capacity", eventID)
			}
			return fmt.Errorf("lock event row: %w", err)
		}
		if capacity < held {
			return belowHeld("postgres.set_capacity", capacity, held)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE events SET capacity = $2, updated_at = $3 WHERE id = $1`,
			eventID, capacity, at,
		); err != nil {
			return fmt.Errorf("update capacity: %w", err)
		}
		return nil
	})
}

// GetEvent returns a single event or ErrNotFound.
func (r *Postgres) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT id, title, description, location, date, capacity, held_seats, status, created_at, updated_at
		 FROM events WHERE id = $1`,
		eventID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Event{}, eventNotFound("postgres.get_event", eventID)
		}
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// ListEvents returns all events ordered by creation time descending.
func (r *Postgres) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, title, description, location, date, capacity, held_seats, status, created_at, updated_at
		 FROM events
		 ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertReservation performs a concurrency-safe reservation inside a
// transaction.
//
// The naive read-then-write approach lets two transactions read the same
// held_seats value, both see a free seat and both write back held+1:
//
//	A: SELECT held_seats → 9 (capacity 10)
//	B: SELECT held_seats → 9
//	A: INSERT reservation, UPDATE held_seats = 10
//	B: INSERT reservation, UPDATE held_seats = 10   ← 11 reservations
//
// SELECT … FOR UPDATE takes a row-level lock on the event, so a second
// transaction reaching the same statement waits until the first commits
// or rolls back and then reads the updated counter.
func (r *Postgres) InsertReservation(ctx context.Context, res model.Reservation) error {
	const op = "postgres.insert_reservation"
	return r.withTx(ctx, func(tx pgx.Tx) error {
		var capacity, held int
		var status model.EventStatus
		err := tx.QueryRow(ctx,
			`SELECT capacity, held_seats, status
			 FROM events
			 WHERE id = $1
			 FOR UPDATE`,
			res.EventID,
		).Scan(&capacity, &held, &status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return eventNotFound(op, res.EventID)
			}
			return fmt.Errorf("lock event row: %w", err)
		}

		if status != model.EventPublished {
			return model.E(model.KindNotBookable, op, "event %s is %s", res.EventID, status)
		}

		var dupCount int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM reservations
			 WHERE event_id = $1 AND participant_id = $2 AND state IN ('pending', 'confirmed')`,
			res.EventID, res.ParticipantID,
		).Scan(&dupCount)
		if err != nil {
			return fmt.Errorf("check duplicate: %w", err)
		}
		if dupCount > 0 {
			return model.E(model.KindDuplicateReservation, op, "participant already holds a seat")
		}

		if held >= capacity {
			return model.E(model.KindFull, op, "event %s is fully booked", res.EventID)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE events SET held_seats = held_seats + 1 WHERE id = $1`,
			res.EventID,
		); err != nil {
			return fmt.Errorf("increment held_seats: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO reservations (id, event_id, participant_id, state, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			res.ID, res.EventID, res.ParticipantID, res.State, res.CreatedAt, res.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return model.E(model.KindDuplicateReservation, op, "participant already holds a seat")
			}
			return fmt.Errorf("insert reservation: %w", err)
		}
		return nil
	})
}

// UpdateReservationState moves a reservation between states and, when
// release is set, gives its seat back in the same transaction.
func (r *Postgres) UpdateReservationState(ctx context.Context, id string, from, to model.ReservationState, release bool, at time.Time) error {
	const op = "postgres.update_reservation"
	return r.withTx(ctx, func(tx pgx.Tx) error {
		var eventID string
		err := tx.QueryRow(ctx,
			`UPDATE reservations SET state = $3, updated_at = $4
			 WHERE id = $1 AND state = $2
			 RETURNING event_id`,
			id, from, to, at,
		).Scan(&eventID)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("update reservation state: %w", err)
			}
			var cur model.ReservationState
			err := tx.QueryRow(ctx, `SELECT state FROM reservations WHERE id = $1`, id).Scan(&cur)
			if errors.Is(err, pgx.ErrNoRows) {
				return model.E(model.KindNotFound, op, "reservation %s not found", id)
			}
			if err != nil {
				return fmt.Errorf("read reservation state: %w", err)
			}
			return staleState(op, id, from, cur)
		}

		if !release {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`UPDATE events SET held_seats = held_seats - 1 WHERE id = $1 AND held_seats > 0`,
			eventID,
		); err != nil {
			return fmt.Errorf("decrement held_seats: %w", err)
		}
		return nil
	})
}

// ListReservations returns every reservation ordered by creation time.
func (r *Postgres) ListReservations(ctx context.Context) ([]model.Reservation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, event_id, participant_id, state, created_at, updated_at
		 FROM reservations
		 ORDER BY created_at ASC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		var res model.Reservation
		if err := rows.Scan(&res.ID, &res.EventID, &res.ParticipantID, &res.State, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// withTx runs fn in a transaction, committing when fn returns nil.
func (r *Postgres) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback after a successful Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func scanEvent(row pgx.Row) (model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.Date,
		&e.Capacity, &e.Held, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
