package parking

import (
	"strings"
)

type VehicleType string

const (
	Car  VehicleType = "CAR"
	Bike VehicleType = "BIKE"
)

// VehicleTypes lists every type a spot pool can be partitioned by.
var VehicleTypes = []VehicleType{Car, Bike}

func (t VehicleType) Valid() bool {
	switch t {
	case Car, Bike:
		return true
	}
	return false
}

func (t VehicleType) String() string {
	return string(t)
}

// ParseSelection resolves the entry menu choice. Both the numeric menu
// entries ("1" for CAR, "2" for BIKE) and the type names are accepted.
func ParseSelection(selection string) (VehicleType, error) {
	switch strings.ToUpper(strings.TrimSpace(selection)) {
	case "1", string(Car):
		return Car, nil
	case "2", string(Bike):
		return Bike, nil
	default:
		return "", ErrInvalidSelection
	}
}

// ParseVehicleType reads a stored type tag.
func ParseVehicleType(s string) (VehicleType, error) {
	t := VehicleType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrMissingVehicleType
	}
	return t, nil
}

func normalizeRegistration(registration string) (string, error) {
	registration = strings.TrimSpace(registration)
	if registration == "" {
		return "", ErrInvalidRegistration
	}
	return registration, nil
}
