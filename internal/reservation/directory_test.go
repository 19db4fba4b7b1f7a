package reservation_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/clock"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/ledger"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/repository"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/reservation"
)

var (
	start = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	admin = model.Actor{ID: "admin-1", Role: model.RoleAdmin}
)

func participant(id string) model.Actor {
	return model.Actor{ID: id, Role: model.RoleParticipant}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flakyStore fails writes while failWrites is set.
type flakyStore struct {
	*repository.Memory
	failWrites atomic.Bool
}

var errDiskGone = errors.New("disk gone")

func (s *flakyStore) InsertReservation(ctx context.Context, r model.Reservation) error {
	if s.failWrites.Load() {
		return errDiskGone
	}
	return s.Memory.InsertReservation(ctx, r)
}

func (s *flakyStore) UpdateReservationState(ctx context.Context, id string, from, to model.ReservationState, release bool, at time.Time) error {
	if s.failWrites.Load() {
		return errDiskGone
	}
	return s.Memory.UpdateReservationState(ctx, id, from, to, release, at)
}

type fixture struct {
	store  *flakyStore
	ledger *ledger.Ledger
	clock  *clock.Fake
	dir    *reservation.Directory
}

func newFixture(t *testing.T, events ...model.Event) *fixture {
	t.Helper()
	f := &fixture{
		store:  &flakyStore{Memory: repository.NewMemory()},
		ledger: ledger.New(time.Second),
		clock:  clock.NewFake(start),
	}
	for _, e := range events {
		if err := f.store.CreateEvent(context.Background(), e); err != nil {
			t.Fatalf("create event: %v", err)
		}
		f.ledger.Track(e)
	}
	f.dir = reservation.NewDirectory(f.ledger, f.store,
		reservation.WithClock(f.clock),
		reservation.WithLogger(discardLogger()),
	)
	return f
}

func published(id string, capacity int) model.Event {
	return model.Event{ID: id, Title: id, Status: model.EventPublished, Capacity: capacity, CreatedAt: start, UpdatedAt: start}
}

// assertHeld checks the ledger, the directory and the store all agree.
func (f *fixture) assertHeld(t *testing.T, eventID string, want int) {
	t.Helper()
	if got := f.ledger.Held(eventID); got != want {
		t.Fatalf("ledger held = %d, want %d", got, want)
	}
	if got := f.dir.Held(eventID); got != want {
		t.Fatalf("directory held = %d, want %d", got, want)
	}
	e, err := f.store.GetEvent(context.Background(), eventID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if e.Held != want {
		t.Fatalf("store held = %d, want %d", e.Held, want)
	}
}

func TestDirectory_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a pending reservation and holds a seat", func(t *testing.T) {
		f := newFixture(t, published("e1", 3))

		r, err := f.dir.Create(ctx, "p1", "e1")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if r.ID == "" || r.State != model.StatePending || r.ParticipantID != "p1" || r.EventID != "e1" {
			t.Fatalf("unexpected reservation: %+v", r)
		}
		if !r.CreatedAt.Equal(start) {
			t.Fatalf("expected created_at from clock, got %v", r.CreatedAt)
		}
		f.assertHeld(t, "e1", 1)

		got, err := f.dir.Get(r.ID)
		if err != nil || got != r {
			t.Fatalf("get: %+v, %v", got, err)
		}
	})

	t.Run("rejects a second active reservation for the same pair", func(t *testing.T) {
		f := newFixture(t, published("e1", 3))

		first, err := f.dir.Create(ctx, "p1", "e1")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := f.dir.Create(ctx, "p1", "e1"); !errors.Is(err, model.ErrDuplicateReservation) {
			t.Fatalf("expected ErrDuplicateReservation, got %v", err)
		}
		f.assertHeld(t, "e1", 1)

		if _, err := f.dir.Transition(ctx, first.ID, model.ActionCancel, participant("p1")); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if _, err := f.dir.Create(ctx, "p1", "e1"); err != nil {
			t.Fatalf("rebook after cancel: %v", err)
		}
		f.assertHeld(t, "e1", 1)
		if n := len(f.dir.FindByParticipant("p1")); n != 2 {
			t.Fatalf("expected 2 reservations in history, got %d", n)
		}
	})

	t.Run("full event", func(t *testing.T) {
		f := newFixture(t, published("e1", 2))
		for _, p := range []string{"p1", "p2"} {
			if _, err := f.dir.Create(ctx, p, "e1"); err != nil {
				t.Fatalf("create %s: %v", p, err)
			}
		}
		if _, err := f.dir.Create(ctx, "p3", "e1"); !errors.Is(err, model.ErrFull) {
			t.Fatalf("expected ErrFull, got %v", err)
		}
		f.assertHeld(t, "e1", 2)
		if n := len(f.dir.List()); n != 2 {
			t.Fatalf("expected 2 reservations, got %d", n)
		}
	})

	t.Run("draft and canceled events", func(t *testing.T) {
		draft := published("draft", 5)
		draft.Status = model.EventDraft
		gone := published("gone", 5)
		gone.Status = model.EventCanceled
		f := newFixture(t, draft, gone)

		for _, id := range []string{"draft", "gone"} {
			if _, err := f.dir.Create(ctx, "p1", id); !errors.Is(err, model.ErrNotBookable) {
				t.Fatalf("%s: expected ErrNotBookable, got %v", id, err)
			}
		}
	})

	t.Run("unknown event and missing ids", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.dir.Create(ctx, "p1", "nope"); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := f.dir.Create(ctx, "", "e1"); !errors.Is(err, model.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("store failure leaves no trace", func(t *testing.T) {
		f := newFixture(t, published("e1", 1))
		f.store.failWrites.Store(true)

		_, err := f.dir.Create(ctx, "p1", "e1")
		if !errors.Is(err, errDiskGone) {
			t.Fatalf("expected store error, got %v", err)
		}
		f.assertHeld(t, "e1", 0)
		if n := len(f.dir.List()); n != 0 {
			t.Fatalf("expected no reservations, got %d", n)
		}

		f.store.failWrites.Store(false)
		if _, err := f.dir.Create(ctx, "p1", "e1"); err != nil {
			t.Fatalf("retry after failure: %v", err)
		}
		f.assertHeld(t, "e1", 1)
	})

	t.Run("times out when the event is locked", func(t *testing.T) {
		f := newFixture(t)
		f.ledger = ledger.New(30 * time.Millisecond)
		f.ledger.Track(published("e1", 5))
		if err := f.store.CreateEvent(ctx, published("e1", 5)); err != nil {
			t.Fatalf("create event: %v", err)
		}
		f.dir = reservation.NewDirectory(f.ledger, f.store, reservation.WithLogger(discardLogger()))

		locked := make(chan struct{})
		unlock := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = f.ledger.Do(ctx, "e1", func(*ledger.Tx) error {
				close(locked)
				<-unlock
				return nil
			})
		}()
		<-locked

		_, err := f.dir.Create(ctx, "p1", "e1")
		close(unlock)
		<-done
		if !errors.Is(err, model.ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
		f.assertHeld(t, "e1", 0)
	})
}

func TestDirectory_Transition(t *testing.T) {
	ctx := context.Background()

	t.Run("confirm keeps the seat, cancel releases it", func(t *testing.T) {
		f := newFixture(t, published("e1", 2))
		r, _ := f.dir.Create(ctx, "p1", "e1")

		f.clock.Advance(time.Minute)
		confirmed, err := f.dir.Transition(ctx, r.ID, model.ActionConfirm, admin)
		if err != nil {
			t.Fatalf("confirm: %v", err)
		}
		if confirmed.State != model.StateConfirmed || !confirmed.UpdatedAt.Equal(start.Add(time.Minute)) {
			t.Fatalf("unexpected reservation: %+v", confirmed)
		}
		f.assertHeld(t, "e1", 1)

		canceled, err := f.dir.Transition(ctx, r.ID, model.ActionCancel, participant("p1"))
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if canceled.State != model.StateCanceled {
			t.Fatalf("expected canceled, got %s", canceled.State)
		}
		f.assertHeld(t, "e1", 0)
	})

	t.Run("refuse releases the seat", func(t *testing.T) {
		f := newFixture(t, published("e1", 1))
		r, _ := f.dir.Create(ctx, "p1", "e1")

		if _, err := f.dir.Transition(ctx, r.ID, model.ActionRefuse, admin); err != nil {
			t.Fatalf("refuse: %v", err)
		}
		f.assertHeld(t, "e1", 0)
		if _, err := f.dir.Create(ctx, "p2", "e1"); err != nil {
			t.Fatalf("freed seat should be bookable: %v", err)
		}
	})

	t.Run("illegal transitions change nothing", func(t *testing.T) {
		f := newFixture(t, published("e1", 2))
		r, _ := f.dir.Create(ctx, "p1", "e1")
		if _, err := f.dir.Transition(ctx, r.ID, model.ActionCancel, admin); err != nil {
			t.Fatalf("cancel: %v", err)
		}

		for _, a := range []model.Action{model.ActionCancel, model.ActionConfirm, model.ActionRefuse} {
			if _, err := f.dir.Transition(ctx, r.ID, a, admin); !errors.Is(err, model.ErrInvalidTransition) {
				t.Fatalf("%s on canceled: expected ErrInvalidTransition, got %v", a, err)
			}
		}
		f.assertHeld(t, "e1", 0)
	})

	t.Run("actors", func(t *testing.T) {
		f := newFixture(t, published("e1", 2))
		r, _ := f.dir.Create(ctx, "p1", "e1")

		if _, err := f.dir.Transition(ctx, r.ID, model.ActionConfirm, participant("p1")); !errors.Is(err, model.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		if _, err := f.dir.Transition(ctx, r.ID, model.ActionCancel, participant("p2")); !errors.Is(err, model.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		got, _ := f.dir.Get(r.ID)
		if got.State != model.StatePending {
			t.Fatalf("expected pending, got %s", got.State)
		}
		f.assertHeld(t, "e1", 1)
	})

	t.Run("unknown reservation", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.dir.Transition(ctx, "missing", model.ActionCancel, admin); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("release with no held seats is logged", func(t *testing.T) {
		f := newFixture(t, published("e1", 2))
		r, err := f.dir.Create(ctx, "p1", "e1")
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		// A ledger restored from a stale snapshot disagrees with the store.
		stale := published("e1", 2)
		led := ledger.New(time.Second)
		led.Track(stale)
		var logs bytes.Buffer
		dir := reservation.NewDirectory(led, f.store,
			reservation.WithClock(f.clock),
			reservation.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		)
		if err := dir.Load(ctx); err != nil {
			t.Fatalf("load: %v", err)
		}

		got, err := dir.Transition(ctx, r.ID, model.ActionCancel, admin)
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if got.State != model.StateCanceled {
			t.Fatalf("expected canceled, got %s", got.State)
		}
		if held := led.Held("e1"); held != 0 {
			t.Fatalf("ledger held must stay at 0, got %d", held)
		}
		out := logs.String()
		if !strings.Contains(out, "seat release with no held seats") || !strings.Contains(out, "reservation_id="+r.ID) {
			t.Fatalf("expected a warning for the unmatched release, got %q", out)
		}
	})

	t.Run("store failure keeps state and seat", func(t *testing.T) {
		f := newFixture(t, published("e1", 2))
		r, _ := f.dir.Create(ctx, "p1", "e1")

		f.store.failWrites.Store(true)
		if _, err := f.dir.Transition(ctx, r.ID, model.ActionCancel, admin); !errors.Is(err, errDiskGone) {
			t.Fatalf("expected store error, got %v", err)
		}
		got, _ := f.dir.Get(r.ID)
		if got.State != model.StatePending {
			t.Fatalf("expected pending, got %s", got.State)
		}
		if _, err := f.dir.Create(ctx, "p1", "e1"); !errors.Is(err, errDiskGone) && !errors.Is(err, model.ErrDuplicateReservation) {
			t.Fatalf("unexpected error: %v", err)
		}
		f.store.failWrites.Store(false)
		f.assertHeld(t, "e1", 1)
	})
}

func TestDirectory_Concurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("never overbooks", func(t *testing.T) {
		const capacity = 10
		const participants = 60
		f := newFixture(t, published("e1", capacity))

		var ok, full int32
		var wg sync.WaitGroup
		wg.Add(participants)
		for i := 0; i < participants; i++ {
			go func(i int) {
				defer wg.Done()
				_, err := f.dir.Create(ctx, fmt.Sprintf("p%d", i), "e1")
				switch {
				case err == nil:
					atomic.AddInt32(&ok, 1)
				case errors.Is(err, model.ErrFull):
					atomic.AddInt32(&full, 1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		if ok != capacity || full != participants-capacity {
			t.Fatalf("expected %d ok / %d full, got %d / %d", capacity, participants-capacity, ok, full)
		}
		f.assertHeld(t, "e1", capacity)
	})

	t.Run("one active reservation per participant", func(t *testing.T) {
		const attempts = 25
		f := newFixture(t, published("e1", 100))

		var ok, dup int32
		var wg sync.WaitGroup
		wg.Add(attempts)
		for i := 0; i < attempts; i++ {
			go func() {
				defer wg.Done()
				_, err := f.dir.Create(ctx, "p1", "e1")
				switch {
				case err == nil:
					atomic.AddInt32(&ok, 1)
				case errors.Is(err, model.ErrDuplicateReservation):
					atomic.AddInt32(&dup, 1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if ok != 1 || dup != attempts-1 {
			t.Fatalf("expected 1 ok / %d duplicates, got %d / %d", attempts-1, ok, dup)
		}
		f.assertHeld(t, "e1", 1)
	})

	t.Run("a seat is released once", func(t *testing.T) {
		const attempts = 20
		f := newFixture(t, published("e1", 5))
		r, _ := f.dir.Create(ctx, "p1", "e1")
		if _, err := f.dir.Create(ctx, "p2", "e1"); err != nil {
			t.Fatalf("create: %v", err)
		}

		var ok, invalid int32
		var wg sync.WaitGroup
		wg.Add(attempts)
		for i := 0; i < attempts; i++ {
			action := model.ActionCancel
			if i%2 == 1 {
				action = model.ActionRefuse
			}
			go func(action model.Action) {
				defer wg.Done()
				_, err := f.dir.Transition(ctx, r.ID, action, admin)
				switch {
				case err == nil:
					atomic.AddInt32(&ok, 1)
				case errors.Is(err, model.ErrInvalidTransition):
					atomic.AddInt32(&invalid, 1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(action)
		}
		wg.Wait()

		if ok != 1 || invalid != attempts-1 {
			t.Fatalf("expected exactly one transition to win, got %d ok / %d invalid", ok, invalid)
		}
		f.assertHeld(t, "e1", 1)
	})

	t.Run("capacity shrink races reservations", func(t *testing.T) {
		f := newFixture(t, published("e1", 3))
		for _, p := range []string{"p1", "p2"} {
			if _, err := f.dir.Create(ctx, p, "e1"); err != nil {
				t.Fatalf("create: %v", err)
			}
		}

		var wg sync.WaitGroup
		var reserveErr, shrinkErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, reserveErr = f.dir.Create(ctx, "p3", "e1")
		}()
		go func() {
			defer wg.Done()
			shrinkErr = f.ledger.Do(ctx, "e1", func(tx *ledger.Tx) error {
				if err := tx.SetCapacity(2); err != nil {
					return err
				}
				return f.store.SetCapacity(ctx, "e1", 2, start)
			})
		}()
		wg.Wait()

		if (reserveErr == nil) == (shrinkErr == nil) {
			t.Fatalf("expected exactly one winner, reserve=%v shrink=%v", reserveErr, shrinkErr)
		}
		slot, _ := f.ledger.Snapshot("e1")
		if slot.Held > slot.Capacity {
			t.Fatalf("held %d exceeds capacity %d", slot.Held, slot.Capacity)
		}
	})

	t.Run("last seat goes to one racer and returns on cancel", func(t *testing.T) {
		f := newFixture(t, published("e1", 1))

		type result struct {
			r   model.Reservation
			err error
		}
		results := make([]result, 2)
		var wg sync.WaitGroup
		wg.Add(len(results))
		for i := range results {
			go func(i int) {
				defer wg.Done()
				r, err := f.dir.Create(ctx, fmt.Sprintf("p%d", i+1), "e1")
				results[i] = result{r: r, err: err}
			}(i)
		}
		wg.Wait()

		var winner model.Reservation
		var won, full int
		for _, res := range results {
			switch {
			case res.err == nil && res.r.State == model.StatePending:
				winner = res.r
				won++
			case errors.Is(res.err, model.ErrFull):
				full++
			default:
				t.Fatalf("unexpected result: %+v", res)
			}
		}
		if won != 1 || full != 1 {
			t.Fatalf("expected one pending and one full, got %d / %d", won, full)
		}
		f.assertHeld(t, "e1", 1)

		if _, err := f.dir.Transition(ctx, winner.ID, model.ActionCancel, participant(winner.ParticipantID)); err != nil {
			t.Fatalf("cancel winner: %v", err)
		}
		f.assertHeld(t, "e1", 0)

		r, err := f.dir.Create(ctx, "p3", "e1")
		if err != nil {
			t.Fatalf("freed seat should be reservable: %v", err)
		}
		if r.State != model.StatePending {
			t.Fatalf("expected pending, got %s", r.State)
		}
		f.assertHeld(t, "e1", 1)
	})
}

func TestDirectory_Queries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, published("e1", 5), published("e2", 5))

	var ids []string
	for _, c := range []struct{ p, e string }{{"p1", "e1"}, {"p2", "e1"}, {"p1", "e2"}} {
		r, err := f.dir.Create(ctx, c.p, c.e)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, r.ID)
		f.clock.Advance(time.Second)
	}

	mine := f.dir.FindByParticipant("p1")
	if len(mine) != 2 || mine[0].ID != ids[0] || mine[1].ID != ids[2] {
		t.Fatalf("unexpected participant reservations: %+v", mine)
	}
	byEvent := f.dir.FindByEvent("e1")
	if len(byEvent) != 2 || byEvent[0].ID != ids[0] || byEvent[1].ID != ids[1] {
		t.Fatalf("unexpected event reservations: %+v", byEvent)
	}
	all := f.dir.List()
	if len(all) != 3 || all[2].ID != ids[2] {
		t.Fatalf("unexpected list: %+v", all)
	}
	if got := f.dir.FindByParticipant("nobody"); len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
	if _, err := f.dir.Get("missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Returned values are copies.
	mine[0].State = model.StateCanceled
	if got, _ := f.dir.Get(ids[0]); got.State != model.StatePending {
		t.Fatalf("directory state leaked through a query result")
	}
}

func TestDirectory_Load(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, published("e1", 3))

	kept, _ := f.dir.Create(ctx, "p1", "e1")
	dropped, _ := f.dir.Create(ctx, "p2", "e1")
	if _, err := f.dir.Transition(ctx, dropped.ID, model.ActionCancel, admin); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// A restarted process rebuilds from the store.
	e, err := f.store.GetEvent(ctx, "e1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	led := ledger.New(time.Second)
	led.Track(e)
	dir := reservation.NewDirectory(led, f.store, reservation.WithLogger(discardLogger()))
	if err := dir.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	if got, err := dir.Get(kept.ID); err != nil || got.State != model.StatePending {
		t.Fatalf("expected pending reservation, got %+v, %v", got, err)
	}
	if got := dir.Held("e1"); got != 1 || led.Held("e1") != 1 {
		t.Fatalf("expected held 1, got directory=%d ledger=%d", got, led.Held("e1"))
	}
	if _, err := dir.Create(ctx, "p1", "e1"); !errors.Is(err, model.ErrDuplicateReservation) {
		t.Fatalf("expected ErrDuplicateReservation after reload, got %v", err)
	}
	if _, err := dir.Create(ctx, "p2", "e1"); err != nil {
		t.Fatalf("canceled pair should be rebookable: %v", err)
	}
}
