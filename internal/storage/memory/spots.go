package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"parking-ticket/internal/parking"
)

// SpotPool is an in-process SpotAllocator. Spot ids are assigned in
// sequence, cars first.
type SpotPool struct {
	mu    sync.Mutex
	spots []*parking.ParkingSpot
}

func NewSpotPool(capacity map[parking.VehicleType]int) *SpotPool {
	var spots []*parking.ParkingSpot
	id := 1
	for _, vehicleType := range parking.VehicleTypes {
		for i := 0; i < capacity[vehicleType]; i++ {
			spots = append(spots, parking.NewParkingSpot(id, vehicleType))
			id++
		}
	}

	return &SpotPool{spots: spots}
}

func (p *SpotPool) NextAvailable(_ context.Context, vehicleType parking.VehicleType) (int, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, spot := range p.spots {
		if spot.VehicleType == vehicleType && spot.Available {
			return spot.ID, true, nil
		}
	}
	return 0, false, nil
}

func (p *SpotPool) SetAvailability(_ context.Context, spotID int, available bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	spot := p.find(spotID)
	if spot == nil {
		return fmt.Errorf("spot %d: %w", spotID, parking.ErrUnknownSpot)
	}

	if available {
		spot.Release()
		return nil
	}

	if !spot.Available {
		return parking.ErrNoSpotAvailable
	}
	spot.Occupy()
	return nil
}

// Spots returns a copy of the pool ordered by id.
func (p *SpotPool) Spots() []parking.ParkingSpot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]parking.ParkingSpot, 0, len(p.spots))
	for _, spot := range p.spots {
		out = append(out, *spot)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})

	return out
}

func (p *SpotPool) find(spotID int) *parking.ParkingSpot {
	for _, spot := range p.spots {
		if spot.ID == spotID {
			return spot
		}
	}
	return nil
}
