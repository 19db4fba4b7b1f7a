package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLite is a Store backed by an embedded SQLite database (modernc.org/sqlite
// through database/sql). Timestamps are stored as unix nanoseconds.
//
// Seat accounting relies on a single guarded statement,
//
//	UPDATE events SET held_seats = held_seats + 1
//	WHERE id = ? AND status = 'published' AND held_seats < capacity
//
// so the check and the increment cannot be separated by another writer.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// NewSQLite constructs a SQLite store over an open database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

const eventColumns = `id, title, description, location, date, capacity, held_seats, status, created_at, updated_at`

func (s *SQLite) CreateEvent(ctx context.Context, e model.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		e.ID, e.Title, e.Description, e.Location, unixNano(e.Date), e.Capacity, string(e.Status),
		unixNano(e.CreatedAt), unixNano(e.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return model.E(model.KindInvalidInput, "sqlite.create_event", "event %s already exists", e.ID)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *SQLite) UpdateEvent(ctx context.Context, e model.Event, withCapacity bool) error {
	const op = "sqlite.update_event"
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var held, capacity int
		err := tx.QueryRowContext(ctx,
			`SELECT held_seats, capacity FROM events WHERE id = ?`, e.ID,
		).Scan(&held, &capacity)
		if errors.Is(err, sql.ErrNoRows) {
			return eventNotFound(op, e.ID)
		}
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		if withCapacity {
			if e.Capacity < held {
				return belowHeld(op, e.Capacity, held)
			}
			capacity = e.Capacity
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE events SET title = ?, description = ?, location = ?, date = ?, capacity = ?, updated_at = ?
			 WHERE id = ? AND held_seats <= ?`,
			e.Title, e.Description, e.Location, unixNano(e.Date), capacity, unixNano(e.UpdatedAt), e.ID, capacity,
		)
		if err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		return requireRow(res, belowHeld(op, capacity, held))
	})
}

func (s *SQLite) SetEventStatus(ctx context.Context, eventID string, status model.EventStatus, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), unixNano(at), eventID,
	)
	if err != nil {
		return fmt.Errorf("set event status: %w", err)
	}
	return requireRow(res, eventNotFound("sqlite.set_status", eventID))
}

func (s *SQLite) SetCapacity(ctx context.Context, eventID string, capacity int, at time.Time) error {
	const op = "sqlite.set_capacity"
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET capacity = ?, updated_at = ? WHERE id = ? AND held_seats <= ?`,
		capacity, unixNano(at), eventID, capacity,
	)
	if err != nil {
		return fmt.Errorf("update capacity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update capacity: %w", err)
	}
	if n > 0 {
		return nil
	}

	e, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	return belowHeld(op, capacity, e.Held)
}

func (s *SQLite) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	e, err := scanSQLiteEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Event{}, eventNotFound("sqlite.get_event", eventID)
		}
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (s *SQLite) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanSQLiteEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLite) InsertReservation(ctx context.Context, r model.Reservation) error {
	const op = "sqlite.insert_reservation"
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var dupCount int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM reservations
			 WHERE event_id = ? AND participant_id = ? AND state IN ('pending', 'confirmed')`,
			r.EventID, r.ParticipantID,
		).Scan(&dupCount); err != nil {
			return fmt.Errorf("check duplicate: %w", err)
		}
		if dupCount > 0 {
			return model.E(model.KindDuplicateReservation, op, "participant already holds a seat")
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE events SET held_seats = held_seats + 1
			 WHERE id = ? AND status = 'published' AND held_seats < capacity`,
			r.EventID,
		)
		if err != nil {
			return fmt.Errorf("reserve seat: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reserve seat: %w", err)
		}
		if n == 0 {
			return s.explainRejectedReserve(ctx, tx, r.EventID)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reservations (id, event_id, participant_id, state, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, r.EventID, r.ParticipantID, string(r.State), unixNano(r.CreatedAt), unixNano(r.UpdatedAt),
		); err != nil {
			if isConstraintViolation(err) {
				return model.E(model.KindDuplicateReservation, op, "participant already holds a seat")
			}
			return fmt.Errorf("insert reservation: %w", err)
		}
		return nil
	})
}

// explainRejectedReserve tells apart the reasons the guarded update matched
// no row.
func (s *SQLite) explainRejectedReserve(ctx context.Context, tx *sql.Tx, eventID string) error {
	const op = "sqlite.insert_reservation"
	var status string
	var capacity, held int
	err := tx.QueryRowContext(ctx,
		`SELECT status, capacity, held_seats FROM events WHERE id = ?`, eventID,
	).Scan(&status, &capacity, &held)
	if errors.Is(err, sql.ErrNoRows) {
		return eventNotFound(op, eventID)
	}
	if err != nil {
		return fmt.Errorf("read event: %w", err)
	}
	if model.EventStatus(status) != model.EventPublished {
		return model.E(model.KindNotBookable, op, "event %s is %s", eventID, status)
	}
	return model.E(model.KindFull, op, "event %s is fully booked", eventID)
}

func (s *SQLite) UpdateReservationState(ctx context.Context, id string, from, to model.ReservationState, release bool, at time.Time) error {
	const op = "sqlite.update_reservation"
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var eventID string
		var cur string
		err := tx.QueryRowContext(ctx,
			`SELECT event_id, state FROM reservations WHERE id = ?`, id,
		).Scan(&eventID, &cur)
		if errors.Is(err, sql.ErrNoRows) {
			return model.E(model.KindNotFound, op, "reservation %s not found", id)
		}
		if err != nil {
			return fmt.Errorf("read reservation: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE reservations SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
			string(to), unixNano(at), id, string(from),
		)
		if err != nil {
			return fmt.Errorf("update reservation state: %w", err)
		}
		if err := requireRow(res, staleState(op, id, from, model.ReservationState(cur))); err != nil {
			return err
		}

		if !release {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE events SET held_seats = held_seats - 1 WHERE id = ? AND held_seats > 0`,
			eventID,
		); err != nil {
			return fmt.Errorf("release seat: %w", err)
		}
		return nil
	})
}

func (s *SQLite) ListReservations(ctx context.Context) ([]model.Reservation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, participant_id, state, created_at, updated_at
		 FROM reservations ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		var r model.Reservation
		var state string
		var created, updated int64
		if err := rows.Scan(&r.ID, &r.EventID, &r.ParticipantID, &state, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		r.State = model.ReservationState(state)
		r.CreatedAt = fromUnixNano(created)
		r.UpdatedAt = fromUnixNano(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEvent(row rowScanner) (model.Event, error) {
	var e model.Event
	var status string
	var date, created, updated int64
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &date,
		&e.Capacity, &e.Held, &status, &created, &updated)
	if err != nil {
		return model.Event{}, err
	}
	e.Status = model.EventStatus(status)
	e.Date = fromUnixNano(date)
	e.CreatedAt = fromUnixNano(created)
	e.UpdatedAt = fromUnixNano(updated)
	return e, nil
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}

// isConstraintViolation reports whether err is a SQLite UNIQUE or PRIMARY
// KEY failure.
func isConstraintViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
