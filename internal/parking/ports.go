package parking

import (
	"context"
	"time"
)

// SpotAllocator hands out spots from the externally provisioned pool.
type SpotAllocator interface {
	// NextAvailable reports false when the pool for vehicleType is full.
	NextAvailable(ctx context.Context, vehicleType VehicleType) (int, bool, error)
	// SetAvailability with available=false must only succeed when the spot
	// is currently available; otherwise it returns ErrNoSpotAvailable.
	SetAvailability(ctx context.Context, spotID int, available bool) error
}

type TicketLedger interface {
	HasOpenTicket(ctx context.Context, registration string) (bool, error)
	OpenTicket(ctx context.Context, ticket Ticket) (Ticket, error)
	// GetOpenTicket returns nil when the vehicle has no open ticket.
	GetOpenTicket(ctx context.Context, registration string) (*Ticket, error)
	CloseTicket(ctx context.Context, ticket Ticket) error
	CountCompletedStays(ctx context.Context, registration string, since time.Time) (int, error)
}

// AtomicEntry is implemented by ledgers that can occupy the ticket's spot
// and open the ticket in one transaction.
type AtomicEntry interface {
	OccupyAndOpen(ctx context.Context, ticket Ticket) (Ticket, error)
}

type TicketService interface {
	HandleEntry(ctx context.Context, registration, selection string) (EntryResult, error)
	HandleExit(ctx context.Context, registration string) (ExitResult, error)
	OpenTicket(ctx context.Context, registration string) (Ticket, error)
}
