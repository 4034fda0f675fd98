package parking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"parking-ticket/internal/clock"
	"parking-ticket/internal/logging"
)

const (
	DefaultMinStaysForFrequentUser = 5
	DefaultLoyaltyWindow           = 30 * 24 * time.Hour
)

// LoyaltyPolicy grants the frequent user discount when a vehicle has at
// least MinStays completed stays within the trailing Window.
type LoyaltyPolicy struct {
	MinStays int
	Window   time.Duration
}

func DefaultLoyaltyPolicy() LoyaltyPolicy {
	return LoyaltyPolicy{
		MinStays: DefaultMinStaysForFrequentUser,
		Window:   DefaultLoyaltyWindow,
	}
}

func (p LoyaltyPolicy) Eligible(completedStays int) bool {
	return completedStays >= p.MinStays
}

type Orchestrator struct {
	spots   SpotAllocator
	tickets TicketLedger
	fares   *FareCalculator
	clock   clock.Clock
	logger  *slog.Logger
	loyalty LoyaltyPolicy

	vehicles *keyedMutex
	pools    *keyedMutex
}

type OrchestratorOption func(*Orchestrator)

func WithLoyaltyPolicy(p LoyaltyPolicy) OrchestratorOption {
	return func(o *Orchestrator) {
		if p.MinStays > 0 && p.Window > 0 {
			o.loyalty = p
		}
	}
}

func NewOrchestrator(spots SpotAllocator, tickets TicketLedger, fares *FareCalculator, clk clock.Clock, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		spots:    spots,
		tickets:  tickets,
		fares:    fares,
		clock:    clk,
		logger:   logger,
		loyalty:  DefaultLoyaltyPolicy(),
		vehicles: newKeyedMutex(),
		pools:    newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) HandleEntry(ctx context.Context, registration, selection string) (EntryResult, error) {
	registration, err := normalizeRegistration(registration)
	if err != nil {
		return EntryResult{}, err
	}
	vehicleType, err := ParseSelection(selection)
	if err != nil {
		return EntryResult{}, err
	}

	unlockVehicle := o.vehicles.Lock(registration)
	defer unlockVehicle()
	unlockPool := o.pools.Lock(vehicleType.String())
	defer unlockPool()

	log := logging.WithContext(ctx, o.logger).With(
		slog.String("registration", registration),
		slog.String("vehicle_type", vehicleType.String()),
	)

	spotID, found, err := o.spots.NextAvailable(ctx, vehicleType)
	if err != nil {
		return EntryResult{}, unavailable("next available spot", err)
	}
	if !found || spotID <= 0 {
		log.Info("entry refused, pool is full")
		return EntryResult{}, ErrNoSpotAvailable
	}

	parked, err := o.tickets.HasOpenTicket(ctx, registration)
	if err != nil {
		return EntryResult{}, unavailable("check open ticket", err)
	}
	if parked {
		log.Info("entry refused, vehicle has never exited since its last entry")
		return EntryResult{}, ErrVehicleAlreadyParked
	}

	now := o.clock.Now()

	// Opening a ticket does not change the completed count, so it is read
	// before anything is mutated.
	stays, err := o.tickets.CountCompletedStays(ctx, registration, now.Add(-o.loyalty.Window))
	if err != nil {
		return EntryResult{}, unavailable("count completed stays", err)
	}

	ticket, err := o.occupyAndOpen(ctx, log, Ticket{
		SpotID:       spotID,
		VehicleType:  vehicleType,
		Registration: registration,
		Price:        0,
		EntryTime:    now,
	})
	if err != nil {
		return EntryResult{}, err
	}

	result := EntryResult{
		Ticket:       ticket,
		FrequentUser: o.loyalty.Eligible(stays),
	}

	log.Info("ticket opened",
		slog.Int64("ticket_id", ticket.ID),
		slog.Int("spot_id", ticket.SpotID),
		slog.Bool("frequent_user", result.FrequentUser),
	)

	return result, nil
}

// occupyAndOpen marks the spot unavailable and opens the ticket as one
// unit. Without a transactional ledger the spot is released again when the
// ticket cannot be opened.
func (o *Orchestrator) occupyAndOpen(ctx context.Context, log *slog.Logger, ticket Ticket) (Ticket, error) {
	if atomic, ok := o.tickets.(AtomicEntry); ok {
		opened, err := atomic.OccupyAndOpen(ctx, ticket)
		if err != nil {
			return Ticket{}, entryError("occupy spot and open ticket", err)
		}
		return opened, nil
	}

	if err := o.spots.SetAvailability(ctx, ticket.SpotID, false); err != nil {
		return Ticket{}, entryError("occupy spot", err)
	}

	opened, err := o.tickets.OpenTicket(ctx, ticket)
	if err == nil {
		return opened, nil
	}

	openErr := entryError("open ticket", err)
	if rbErr := o.spots.SetAvailability(ctx, ticket.SpotID, true); rbErr != nil {
		log.Error("failed to release spot after ticket creation failed",
			slog.Int("spot_id", ticket.SpotID),
			slog.Any("error", rbErr),
		)
		return Ticket{}, errors.Join(openErr, unavailable("release spot", rbErr))
	}

	log.Warn("ticket creation failed, spot released", slog.Int("spot_id", ticket.SpotID), slog.Any("error", err))
	return Ticket{}, openErr
}

func entryError(op string, err error) error {
	switch {
	case errors.Is(err, ErrNoSpotAvailable), errors.Is(err, ErrVehicleAlreadyParked):
		return err
	}
	return unavailable(op, err)
}

func (o *Orchestrator) HandleExit(ctx context.Context, registration string) (ExitResult, error) {
	registration, err := normalizeRegistration(registration)
	if err != nil {
		return ExitResult{}, err
	}

	unlock := o.vehicles.Lock(registration)
	defer unlock()

	log := logging.WithContext(ctx, o.logger).With(slog.String("registration", registration))

	open, err := o.tickets.GetOpenTicket(ctx, registration)
	if err != nil {
		return ExitResult{}, unavailable("get open ticket", err)
	}
	if open == nil {
		return ExitResult{}, ErrNoOpenTicket
	}

	exitTime := o.clock.Now()

	stays, err := o.tickets.CountCompletedStays(ctx, registration, exitTime.Add(-o.loyalty.Window))
	if err != nil {
		return ExitResult{}, unavailable("count completed stays", err)
	}
	discount := o.loyalty.Eligible(stays)

	quote, err := o.fares.Quote(open.EntryTime, exitTime, open.VehicleType, discount)
	if err != nil {
		return ExitResult{}, err
	}

	closed := *open
	closed.ExitTime = &exitTime
	closed.Price = RoundPrice(quote.Price)

	if err := o.tickets.CloseTicket(ctx, closed); err != nil {
		log.Error("failed to close ticket, spot stays occupied",
			slog.Int64("ticket_id", closed.ID),
			slog.Int("spot_id", closed.SpotID),
			slog.Any("error", err),
		)
		return ExitResult{}, fmt.Errorf("%w: ticket %d: %w", ErrTicketUpdateFailed, closed.ID, err)
	}

	if err := o.spots.SetAvailability(ctx, closed.SpotID, true); err != nil {
		log.Error("ticket closed but spot could not be released",
			slog.Int64("ticket_id", closed.ID),
			slog.Int("spot_id", closed.SpotID),
			slog.String("price", FormatPrice(closed.Price)),
			slog.Any("error", err),
		)
		return ExitResult{}, unavailable("release spot", err)
	}

	log.Info("ticket closed",
		slog.Int64("ticket_id", closed.ID),
		slog.Int("spot_id", closed.SpotID),
		slog.String("price", FormatPrice(closed.Price)),
		slog.Bool("frequent_user", discount),
	)

	return ExitResult{
		Ticket:       closed,
		Quote:        quote,
		FrequentUser: discount,
	}, nil
}

func (o *Orchestrator) OpenTicket(ctx context.Context, registration string) (Ticket, error) {
	registration, err := normalizeRegistration(registration)
	if err != nil {
		return Ticket{}, err
	}

	open, err := o.tickets.GetOpenTicket(ctx, registration)
	if err != nil {
		return Ticket{}, unavailable("get open ticket", err)
	}
	if open == nil {
		return Ticket{}, ErrNoOpenTicket
	}
	return *open, nil
}
