package service

import (
	"context"
	"math"
	"sort"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/clock"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/reservation"
)

// StatsService builds the organizer dashboard.
type StatsService struct {
	events *EventService
	dir    *reservation.Directory
	clock  clock.Clock
}

// NewStatsService constructs a StatsService.
func NewStatsService(events *EventService, dir *reservation.Directory, clk clock.Clock) *StatsService {
	return &StatsService{events: events, dir: dir, clock: clk}
}

// Dashboard aggregates upcoming events, seat usage and reservation counts.
func (s *StatsService) Dashboard(ctx context.Context) (model.Dashboard, error) {
	published, err := s.events.ListPublished(ctx)
	if err != nil {
		return model.Dashboard{}, err
	}
	return model.Dashboard{
		UpcomingEvents:       upcoming(published, s.clock),
		FillRate:             fillRate(published),
		ReservationsByStatus: countByState(s.dir.List()),
	}, nil
}

func upcoming(published []model.Event, clk clock.Clock) model.UpcomingEvents {
	now := clk.Now()
	events := make([]model.Event, 0, len(published))
	for _, e := range published {
		if e.Date.After(now) {
			events = append(events, e)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})
	return model.UpcomingEvents{Total: len(events), Events: events}
}

func fillRate(published []model.Event) model.FillRate {
	var fr model.FillRate
	for _, e := range published {
		fr.TotalCapacity += e.Capacity
		fr.TotalReserved += e.Held
	}
	if fr.TotalCapacity > 0 {
		rate := float64(fr.TotalReserved) / float64(fr.TotalCapacity) * 100
		fr.FillRate = math.Round(rate*100) / 100
	}
	fr.AvailableSeats = fr.TotalCapacity - fr.TotalReserved
	return fr
}

func countByState(rs []model.Reservation) model.ReservationCounts {
	c := model.ReservationCounts{Total: len(rs)}
	for _, r := range rs {
		switch r.State {
		case model.StatePending:
			c.Pending++
		case model.StateConfirmed:
			c.Confirmed++
		case model.StateRefused:
			c.Refused++
		case model.StateCanceled:
			c.Canceled++
		}
	}
	return c
}
