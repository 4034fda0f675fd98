package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"parking-ticket/internal/parking"
)

var errTicketNotOpen = errors.New("ticket is not open")

// TicketRepository stores tickets in the ticket table. Entry occupies the
// spot and inserts the ticket in one transaction.
type TicketRepository struct {
	querier
	spots *SpotRepository
}

var (
	_ parking.TicketLedger = (*TicketRepository)(nil)
	_ parking.AtomicEntry  = (*TicketRepository)(nil)
)

func NewTicketRepository(pool *pgxpool.Pool, spots *SpotRepository) *TicketRepository {
	return &TicketRepository{querier: querier{pool: pool}, spots: spots}
}

func (r *TicketRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *TicketRepository) HasOpenTicket(ctx context.Context, registration string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM ticket WHERE vehicle_reg_number = $1 AND out_time IS NULL)`

	var open bool
	if err := r.queryRow(ctx, query, registration).Scan(&open); err != nil {
		return false, fmt.Errorf("check open ticket: %w", err)
	}
	return open, nil
}

func (r *TicketRepository) OpenTicket(ctx context.Context, ticket parking.Ticket) (parking.Ticket, error) {
	const stmt = `
INSERT INTO ticket (parking_number, vehicle_reg_number, price, in_time, out_time)
VALUES ($1, $2, $3, $4, NULL)
RETURNING id`

	err := r.queryRow(ctx, stmt,
		ticket.SpotID,
		ticket.Registration,
		ticket.Price,
		ticket.EntryTime,
	).Scan(&ticket.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return parking.Ticket{}, parking.ErrVehicleAlreadyParked
		}
		return parking.Ticket{}, fmt.Errorf("open ticket: %w", err)
	}
	return ticket, nil
}

func (r *TicketRepository) OccupyAndOpen(ctx context.Context, ticket parking.Ticket) (parking.Ticket, error) {
	var opened parking.Ticket
	err := r.WithTx(ctx, func(txCtx context.Context) error {
		if err := r.spots.occupy(txCtx, ticket.SpotID); err != nil {
			return err
		}
		var err error
		opened, err = r.OpenTicket(txCtx, ticket)
		return err
	})
	if err != nil {
		return parking.Ticket{}, err
	}
	return opened, nil
}

func (r *TicketRepository) GetOpenTicket(ctx context.Context, registration string) (*parking.Ticket, error) {
	const query = `
SELECT t.id, t.parking_number, COALESCE(p.type, ''), t.vehicle_reg_number, t.price::float8, t.in_time, t.out_time
FROM ticket t
LEFT JOIN parking p ON p.parking_number = t.parking_number
WHERE t.vehicle_reg_number = $1 AND t.out_time IS NULL`

	var (
		t           parking.Ticket
		vehicleType string
	)
	err := r.queryRow(ctx, query, registration).
		Scan(&t.ID, &t.SpotID, &vehicleType, &t.Registration, &t.Price, &t.EntryTime, &t.ExitTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get open ticket: %w", err)
	}

	// An unknown type is left empty and rejected by the fare calculator.
	if vt, err := parking.ParseVehicleType(vehicleType); err == nil {
		t.VehicleType = vt
	}
	t.EntryTime = t.EntryTime.UTC()
	return &t, nil
}

func (r *TicketRepository) CloseTicket(ctx context.Context, ticket parking.Ticket) error {
	if ticket.ExitTime == nil {
		return fmt.Errorf("close ticket %d: missing exit time", ticket.ID)
	}

	const stmt = `UPDATE ticket SET price = $2, out_time = $3 WHERE id = $1 AND out_time IS NULL`

	tag, err := r.exec(ctx, stmt, ticket.ID, ticket.Price, *ticket.ExitTime)
	if err != nil {
		return fmt.Errorf("close ticket %d: %w", ticket.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("close ticket %d: %w", ticket.ID, errTicketNotOpen)
	}
	return nil
}

func (r *TicketRepository) CountCompletedStays(ctx context.Context, registration string, since time.Time) (int, error) {
	const query = `
SELECT COUNT(*)
FROM ticket
WHERE vehicle_reg_number = $1 AND out_time IS NOT NULL AND out_time >= $2`

	var count int
	if err := r.queryRow(ctx, query, registration, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count completed stays: %w", err)
	}
	return count, nil
}
