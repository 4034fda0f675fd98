package parking

import (
	"testing"
	"time"
)

func TestNewParkingSpot(t *testing.T) {
	spot := NewParkingSpot(3, Bike)

	if spot.ID != 3 {
		t.Errorf("Expected spot id 3, got %d", spot.ID)
	}

	if spot.VehicleType != Bike {
		t.Errorf("Expected vehicle type BIKE, got %s", spot.VehicleType)
	}

	if !spot.Available {
		t.Error("Expected new spot to be available")
	}
}

func TestParkingSpotOccupyAndRelease(t *testing.T) {
	spot := NewParkingSpot(1, Car)

	spot.Occupy()
	if spot.Available {
		t.Error("Expected spot to be unavailable after occupy")
	}

	spot.Release()
	if !spot.Available {
		t.Error("Expected spot to be available after release")
	}
}

func TestTicketIsOpen(t *testing.T) {
	ticket := Ticket{Registration: "ABCDEF", EntryTime: time.Now()}
	if !ticket.IsOpen() {
		t.Error("Expected ticket without exit time to be open")
	}

	exit := ticket.EntryTime.Add(time.Hour)
	ticket.ExitTime = &exit
	if ticket.IsOpen() {
		t.Error("Expected ticket with exit time to be closed")
	}
}
