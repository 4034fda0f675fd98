package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"parking-ticket/internal/parking"
)

// TicketBook is an in-process TicketLedger.
type TicketBook struct {
	mu      sync.RWMutex
	nextID  int64
	tickets []parking.Ticket
}

func NewTicketBook() *TicketBook {
	return &TicketBook{nextID: 1}
}

func (b *TicketBook) HasOpenTicket(_ context.Context, registration string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.openIndex(registration) >= 0, nil
}

func (b *TicketBook) OpenTicket(_ context.Context, ticket parking.Ticket) (parking.Ticket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openIndex(ticket.Registration) >= 0 {
		return parking.Ticket{}, parking.ErrVehicleAlreadyParked
	}

	ticket.ID = b.nextID
	b.nextID++
	b.tickets = append(b.tickets, ticket)

	return ticket, nil
}

func (b *TicketBook) GetOpenTicket(_ context.Context, registration string) (*parking.Ticket, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	i := b.openIndex(registration)
	if i < 0 {
		return nil, nil
	}
	t := b.tickets[i]
	return &t, nil
}

func (b *TicketBook) CloseTicket(_ context.Context, ticket parking.Ticket) error {
	if ticket.ExitTime == nil {
		return fmt.Errorf("close ticket %d: exit time not set", ticket.ID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.tickets {
		if b.tickets[i].ID != ticket.ID {
			continue
		}
		if !b.tickets[i].IsOpen() {
			return fmt.Errorf("close ticket %d: already closed", ticket.ID)
		}
		exit := *ticket.ExitTime
		b.tickets[i].ExitTime = &exit
		b.tickets[i].Price = ticket.Price
		return nil
	}
	return fmt.Errorf("close ticket %d: not found", ticket.ID)
}

// CountCompletedStays counts closed tickets whose exit is at or after since.
func (b *TicketBook) CountCompletedStays(_ context.Context, registration string, since time.Time) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, t := range b.tickets {
		if t.Registration == registration && !t.IsOpen() && !t.ExitTime.Before(since) {
			count++
		}
	}
	return count, nil
}

// Tickets returns every recorded ticket in creation order.
func (b *TicketBook) Tickets() []parking.Ticket {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]parking.Ticket, len(b.tickets))
	copy(out, b.tickets)
	return out
}

func (b *TicketBook) openIndex(registration string) int {
	for i := len(b.tickets) - 1; i >= 0; i-- {
		if b.tickets[i].Registration == registration && b.tickets[i].IsOpen() {
			return i
		}
	}
	return -1
}
