package parking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var errStoreDown = errors.New("connection refused")

type fakeSpots struct {
	mu    sync.Mutex
	spots map[int]*ParkingSpot

	nextErr    error
	occupyErr  error
	releaseErr error

	nextCalls int
	setCalls  []spotUpdate
}

type spotUpdate struct {
	SpotID    int
	Available bool
}

func newFakeSpots(spots ...*ParkingSpot) *fakeSpots {
	f := &fakeSpots{spots: make(map[int]*ParkingSpot)}
	for _, s := range spots {
		f.spots[s.ID] = s
	}
	return f
}

func (f *fakeSpots) NextAvailable(_ context.Context, vehicleType VehicleType) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextCalls++
	if f.nextErr != nil {
		return 0, false, f.nextErr
	}

	ids := make([]int, 0, len(f.spots))
	for id := range f.spots {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		s := f.spots[id]
		if s.VehicleType == vehicleType && s.Available {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (f *fakeSpots) SetAvailability(_ context.Context, spotID int, available bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.setCalls = append(f.setCalls, spotUpdate{SpotID: spotID, Available: available})
	return f.setLocked(spotID, available)
}

func (f *fakeSpots) setLocked(spotID int, available bool) error {
	if available && f.releaseErr != nil {
		return f.releaseErr
	}
	if !available && f.occupyErr != nil {
		return f.occupyErr
	}

	s, ok := f.spots[spotID]
	if !ok {
		return ErrUnknownSpot
	}
	if !available && !s.Available {
		return ErrNoSpotAvailable
	}
	s.Available = available
	return nil
}

func (f *fakeSpots) available(spotID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spots[spotID].Available
}

func (f *fakeSpots) availableCount(vehicleType VehicleType) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, s := range f.spots {
		if s.VehicleType == vehicleType && s.Available {
			n++
		}
	}
	return n
}

func (f *fakeSpots) updates() []spotUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]spotUpdate(nil), f.setCalls...)
}

type fakeLedger struct {
	mu      sync.Mutex
	nextID  int64
	tickets []Ticket

	hasErr   error
	openErr  error
	getErr   error
	closeErr error
	countErr error

	openCalls  int
	closeCalls int
	countSince []time.Time
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{nextID: 1}
}

func (f *fakeLedger) HasOpenTicket(_ context.Context, registration string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.hasErr != nil {
		return false, f.hasErr
	}
	return f.openLocked(registration) != nil, nil
}

func (f *fakeLedger) OpenTicket(_ context.Context, ticket Ticket) (Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.openCalls++
	if f.openErr != nil {
		return Ticket{}, f.openErr
	}
	return f.appendLocked(ticket)
}

func (f *fakeLedger) appendLocked(ticket Ticket) (Ticket, error) {
	if f.openLocked(ticket.Registration) != nil {
		return Ticket{}, ErrVehicleAlreadyParked
	}
	ticket.ID = f.nextID
	f.nextID++
	f.tickets = append(f.tickets, ticket)
	return ticket, nil
}

func (f *fakeLedger) GetOpenTicket(_ context.Context, registration string) (*Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}
	t := f.openLocked(registration)
	if t == nil {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (f *fakeLedger) CloseTicket(_ context.Context, ticket Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closeCalls++
	if f.closeErr != nil {
		return f.closeErr
	}
	for i := range f.tickets {
		if f.tickets[i].ID == ticket.ID {
			f.tickets[i] = ticket
			return nil
		}
	}
	return errors.New("ticket not found")
}

func (f *fakeLedger) CountCompletedStays(_ context.Context, registration string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.countSince = append(f.countSince, since)
	if f.countErr != nil {
		return 0, f.countErr
	}
	n := 0
	for _, t := range f.tickets {
		if t.Registration == registration && t.ExitTime != nil && !t.ExitTime.Before(since) {
			n++
		}
	}
	return n, nil
}

// addCompletedStays records n closed stays ending at exit.
func (f *fakeLedger) addCompletedStays(registration string, n int, exit time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := 0; i < n; i++ {
		out := exit
		f.tickets = append(f.tickets, Ticket{
			ID:           f.nextID,
			SpotID:       1,
			VehicleType:  Car,
			Registration: registration,
			EntryTime:    exit.Add(-time.Hour),
			ExitTime:     &out,
			Price:        1.5,
		})
		f.nextID++
	}
}

func (f *fakeLedger) all() []Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Ticket(nil), f.tickets...)
}

func (f *fakeLedger) openLocked(registration string) *Ticket {
	for i := range f.tickets {
		if f.tickets[i].Registration == registration && f.tickets[i].ExitTime == nil {
			return &f.tickets[i]
		}
	}
	return nil
}

// atomicLedger occupies the spot and opens the ticket under one lock.
type atomicLedger struct {
	*fakeLedger
	spots *fakeSpots

	atomicCalls int
}

func (a *atomicLedger) OccupyAndOpen(_ context.Context, ticket Ticket) (Ticket, error) {
	a.spots.mu.Lock()
	defer a.spots.mu.Unlock()
	a.mu.Lock()
	defer a.mu.Unlock()

	a.atomicCalls++
	if a.openErr != nil {
		return Ticket{}, a.openErr
	}
	if err := a.spots.setLocked(ticket.SpotID, false); err != nil {
		return Ticket{}, err
	}
	opened, err := a.appendLocked(ticket)
	if err != nil {
		a.spots.spots[ticket.SpotID].Available = true
		return Ticket{}, err
	}
	return opened, nil
}
