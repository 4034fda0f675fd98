package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"parking-ticket/internal/parking"
)

// SpotRepository stores spot availability in the parking table.
type SpotRepository struct {
	querier
}

var _ parking.SpotAllocator = (*SpotRepository)(nil)

func NewSpotRepository(pool *pgxpool.Pool) *SpotRepository {
	return &SpotRepository{querier{pool: pool}}
}

func (r *SpotRepository) NextAvailable(ctx context.Context, vehicleType parking.VehicleType) (int, bool, error) {
	const query = `SELECT MIN(parking_number) FROM parking WHERE available AND type = $1`

	var id *int
	if err := r.queryRow(ctx, query, vehicleType.String()).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("next available spot: %w", err)
	}
	if id == nil {
		return 0, false, nil
	}
	return *id, true, nil
}

func (r *SpotRepository) SetAvailability(ctx context.Context, spotID int, available bool) error {
	if available {
		tag, err := r.exec(ctx, `UPDATE parking SET available = TRUE WHERE parking_number = $1`, spotID)
		if err != nil {
			return fmt.Errorf("release spot %d: %w", spotID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("spot %d: %w", spotID, parking.ErrUnknownSpot)
		}
		return nil
	}
	return r.occupy(ctx, spotID)
}

// occupy flips the spot only if it is still free, so two writers racing for
// the same spot cannot both succeed.
func (r *SpotRepository) occupy(ctx context.Context, spotID int) error {
	tag, err := r.exec(ctx, `UPDATE parking SET available = FALSE WHERE parking_number = $1 AND available`, spotID)
	if err != nil {
		return fmt.Errorf("occupy spot %d: %w", spotID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM parking WHERE parking_number = $1)`, spotID).Scan(&exists); err != nil {
		return fmt.Errorf("check spot %d: %w", spotID, err)
	}
	if !exists {
		return fmt.Errorf("spot %d: %w", spotID, parking.ErrUnknownSpot)
	}
	return parking.ErrNoSpotAvailable
}

// Spots lists every spot ordered by number.
func (r *SpotRepository) Spots(ctx context.Context) ([]parking.ParkingSpot, error) {
	rows, err := r.pool.Query(ctx, `SELECT parking_number, type, available FROM parking ORDER BY parking_number`)
	if err != nil {
		return nil, fmt.Errorf("list spots: %w", err)
	}
	defer rows.Close()

	var spots []parking.ParkingSpot
	for rows.Next() {
		var (
			s           parking.ParkingSpot
			vehicleType string
		)
		if err := rows.Scan(&s.ID, &vehicleType, &s.Available); err != nil {
			return nil, fmt.Errorf("scan spot: %w", err)
		}
		s.VehicleType = parking.VehicleType(vehicleType)
		spots = append(spots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list spots: %w", err)
	}
	return spots, nil
}
