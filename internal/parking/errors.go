package parking

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSelection        = errors.New("invalid vehicle type selection")
	ErrInvalidRegistration     = errors.New("invalid vehicle registration")
	ErrNoSpotAvailable         = errors.New("no parking spot available")
	ErrVehicleAlreadyParked    = errors.New("vehicle is already parked")
	ErrNoOpenTicket            = errors.New("no open ticket for vehicle")
	ErrInvalidInterval         = errors.New("exit time is missing or before entry time")
	ErrMissingVehicleType      = errors.New("missing vehicle type")
	ErrTicketUpdateFailed      = errors.New("unable to update ticket")
	ErrCollaboratorUnavailable = errors.New("parking store unavailable")
	ErrUnknownSpot             = errors.New("unknown parking spot")
)

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCollaboratorUnavailable, op, err)
}

// Message returns the text shown to a driver or operator for err.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidSelection):
		return "Incorrect input provided. Please select 1 for CAR or 2 for BIKE"
	case errors.Is(err, ErrInvalidRegistration):
		return "Please provide a vehicle registration number"
	case errors.Is(err, ErrNoSpotAvailable):
		return "Parking slots might be full. No spot available for this vehicle type"
	case errors.Is(err, ErrVehicleAlreadyParked):
		return "Error : this vehicle is already in the parking"
	case errors.Is(err, ErrNoOpenTicket):
		return "No vehicle is currently parked under this registration number"
	case errors.Is(err, ErrInvalidInterval):
		return "Recorded exit time is incorrect"
	case errors.Is(err, ErrMissingVehicleType):
		return "The parking type of this ticket is unknown"
	case errors.Is(err, ErrTicketUpdateFailed):
		return "Unable to update ticket information. Error occurred"
	case errors.Is(err, ErrCollaboratorUnavailable):
		return "Parking service is temporarily unavailable. Please try again"
	default:
		return "Unexpected error: " + err.Error()
	}
}
