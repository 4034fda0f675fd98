package parking

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultCarRatePerHour   = 1.5
	DefaultBikeRatePerHour  = 1.0
	DefaultFrequentUserRate = 0.95
	DefaultGracePeriod      = 30 * time.Minute
)

var hour = decimal.NewFromInt(int64(time.Hour))

// priceScale is the precision kept for unrounded prices.
const priceScale = 16

type FareSchedule struct {
	CarRatePerHour   decimal.Decimal
	BikeRatePerHour  decimal.Decimal
	FrequentUserRate decimal.Decimal
	// Stays shorter than GracePeriod are free.
	GracePeriod time.Duration
}

func DefaultFareSchedule() FareSchedule {
	return FareSchedule{
		CarRatePerHour:   decimal.NewFromFloat(DefaultCarRatePerHour),
		BikeRatePerHour:  decimal.NewFromFloat(DefaultBikeRatePerHour),
		FrequentUserRate: decimal.NewFromFloat(DefaultFrequentUserRate),
		GracePeriod:      DefaultGracePeriod,
	}
}

func (s FareSchedule) rate(vehicleType VehicleType) (decimal.Decimal, error) {
	switch vehicleType {
	case Car:
		return s.CarRatePerHour, nil
	case Bike:
		return s.BikeRatePerHour, nil
	}
	return decimal.Zero, ErrMissingVehicleType
}

// FareQuote is the breakdown of one fare computation. Price is not rounded.
type FareQuote struct {
	Hours       decimal.Decimal
	RatePerHour decimal.Decimal
	Discounted  bool
	Price       decimal.Decimal
}

type FareCalculator struct {
	schedule FareSchedule
}

func NewFareCalculator(schedule FareSchedule) *FareCalculator {
	return &FareCalculator{schedule: schedule}
}

func (c *FareCalculator) ComputeFare(entry, exit time.Time, vehicleType VehicleType, discount bool) (decimal.Decimal, error) {
	quote, err := c.Quote(entry, exit, vehicleType, discount)
	if err != nil {
		return decimal.Zero, err
	}
	return quote.Price, nil
}

func (c *FareCalculator) Quote(entry, exit time.Time, vehicleType VehicleType, discount bool) (FareQuote, error) {
	if exit.IsZero() || exit.Before(entry) {
		return FareQuote{}, ErrInvalidInterval
	}

	rate, err := c.schedule.rate(vehicleType)
	if err != nil {
		return FareQuote{}, err
	}

	duration := exit.Sub(entry)
	quote := FareQuote{
		Hours:       decimal.NewFromInt(int64(duration)).Div(hour),
		RatePerHour: rate,
		Discounted:  discount,
		Price:       decimal.Zero,
	}

	if duration < c.schedule.GracePeriod {
		return quote, nil
	}

	// Divide last. Hours such as 7/3 are inexact and can drop an x.xx5
	// price below the rounding midpoint.
	price := decimal.NewFromInt(int64(duration)).Mul(rate)
	if discount {
		price = price.Mul(c.schedule.FrequentUserRate)
	}
	quote.Price = price.DivRound(hour, priceScale)

	return quote, nil
}

// RoundPrice rounds half-up to cents. Every stored or displayed price goes
// through here.
func RoundPrice(price decimal.Decimal) float64 {
	f, _ := price.Round(2).Float64()
	return f
}

func FormatPrice(price float64) string {
	return decimal.NewFromFloat(price).StringFixed(2)
}
