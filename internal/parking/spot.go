package parking

import "time"

type ParkingSpot struct {
	ID          int
	VehicleType VehicleType
	Available   bool
}

func NewParkingSpot(id int, vehicleType VehicleType) *ParkingSpot {
	return &ParkingSpot{
		ID:          id,
		VehicleType: vehicleType,
		Available:   true,
	}
}

func (s *ParkingSpot) Occupy() {
	s.Available = false
}

func (s *ParkingSpot) Release() {
	s.Available = true
}

// Ticket records one stay. ExitTime is nil while the vehicle is parked.
type Ticket struct {
	ID           int64
	SpotID       int
	VehicleType  VehicleType
	Registration string
	Price        float64
	EntryTime    time.Time
	ExitTime     *time.Time
}

func (t Ticket) IsOpen() bool {
	return t.ExitTime == nil
}

type EntryResult struct {
	Ticket       Ticket
	FrequentUser bool
}

type ExitResult struct {
	Ticket       Ticket
	Quote        FareQuote
	FrequentUser bool
}
