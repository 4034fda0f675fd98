package parking

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedOrchestrator records spans and OTel metrics around a
// TicketService.
type InstrumentedOrchestrator struct {
	next      TicketService
	telemetry *TelemetryProvider

	// Metrics
	entryOperations   metric.Int64Counter
	exitOperations    metric.Int64Counter
	occupancyGauge    metric.Int64UpDownCounter
	operationDuration metric.Float64Histogram
	fareAmount        metric.Float64Histogram
}

var _ TicketService = (*InstrumentedOrchestrator)(nil)

func NewInstrumentedOrchestrator(next TicketService, telemetry *TelemetryProvider) (*InstrumentedOrchestrator, error) {
	meter := telemetry.Meter()

	entryOperations, err := meter.Int64Counter("parking_entries_total",
		metric.WithDescription("Total number of vehicle entry attempts"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	exitOperations, err := meter.Int64Counter("parking_exits_total",
		metric.WithDescription("Total number of vehicle exit attempts"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	occupancyGauge, err := meter.Int64UpDownCounter("parking_occupancy",
		metric.WithDescription("Number of spots occupied since startup"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	operationDuration, err := meter.Float64Histogram("parking_operation_duration_seconds",
		metric.WithDescription("Duration of parking operations"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	fareAmount, err := meter.Float64Histogram("parking_fare_amount",
		metric.WithDescription("Fares charged at exit"),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(0, 0.5, 1, 1.5, 3, 5, 10, 25, 50, 100))
	if err != nil {
		return nil, err
	}

	return &InstrumentedOrchestrator{
		next:              next,
		telemetry:         telemetry,
		entryOperations:   entryOperations,
		exitOperations:    exitOperations,
		occupancyGauge:    occupancyGauge,
		operationDuration: operationDuration,
		fareAmount:        fareAmount,
	}, nil
}

func (ins *InstrumentedOrchestrator) HandleEntry(ctx context.Context, registration, selection string) (EntryResult, error) {
	ctx, span := ins.telemetry.Tracer().Start(ctx, "parking.entry",
		trace.WithAttributes(
			attribute.String("vehicle.registration_number", registration),
			attribute.String("vehicle.selection", selection),
		))
	defer span.End()

	start := time.Now()

	result, err := ins.next.HandleEntry(ctx, registration, selection)

	labels := []attribute.KeyValue{
		attribute.String("operation", "entry"),
		attribute.String("status", outcome(err)),
	}

	if err != nil {
		recordError(span, err)
	} else {
		labels = append(labels, attribute.String("vehicle_type", result.Ticket.VehicleType.String()))
		span.SetAttributes(
			attribute.Int64("ticket.id", result.Ticket.ID),
			attribute.Int("spot.id", result.Ticket.SpotID),
			attribute.Bool("frequent_user", result.FrequentUser),
		)
		span.AddEvent("spot_allocated", trace.WithAttributes(
			attribute.Int("spot_number", result.Ticket.SpotID),
		))
		ins.occupancyGauge.Add(ctx, 1, metric.WithAttributes(
			attribute.String("vehicle_type", result.Ticket.VehicleType.String()),
		))
	}

	ins.entryOperations.Add(ctx, 1, metric.WithAttributes(labels...))
	ins.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))

	return result, err
}

func (ins *InstrumentedOrchestrator) HandleExit(ctx context.Context, registration string) (ExitResult, error) {
	ctx, span := ins.telemetry.Tracer().Start(ctx, "parking.exit",
		trace.WithAttributes(
			attribute.String("vehicle.registration_number", registration),
		))
	defer span.End()

	start := time.Now()

	result, err := ins.next.HandleExit(ctx, registration)

	labels := []attribute.KeyValue{
		attribute.String("operation", "exit"),
		attribute.String("status", outcome(err)),
	}

	if err != nil {
		recordError(span, err)
	} else {
		vehicleType := attribute.String("vehicle_type", result.Ticket.VehicleType.String())
		labels = append(labels, vehicleType)
		span.SetAttributes(
			attribute.Int64("ticket.id", result.Ticket.ID),
			attribute.Int("spot.id", result.Ticket.SpotID),
			attribute.Float64("ticket.price", result.Ticket.Price),
			attribute.Bool("frequent_user", result.FrequentUser),
		)
		span.AddEvent("spot_released", trace.WithAttributes(
			attribute.Int("spot_number", result.Ticket.SpotID),
		))
		ins.occupancyGauge.Add(ctx, -1, metric.WithAttributes(vehicleType))
		ins.fareAmount.Record(ctx, result.Ticket.Price, metric.WithAttributes(
			vehicleType,
			attribute.Bool("discounted", result.Quote.Discounted),
		))
	}

	ins.exitOperations.Add(ctx, 1, metric.WithAttributes(labels...))
	ins.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))

	return result, err
}

func (ins *InstrumentedOrchestrator) OpenTicket(ctx context.Context, registration string) (Ticket, error) {
	ctx, span := ins.telemetry.Tracer().Start(ctx, "parking.open_ticket",
		trace.WithAttributes(
			attribute.String("vehicle.registration_number", registration),
		))
	defer span.End()

	start := time.Now()

	ticket, err := ins.next.OpenTicket(ctx, registration)

	labels := []attribute.KeyValue{
		attribute.String("operation", "open_ticket"),
		attribute.String("status", outcome(err)),
	}

	switch {
	case errors.Is(err, ErrNoOpenTicket):
		span.AddEvent("vehicle_not_found")
	case err != nil:
		recordError(span, err)
	default:
		span.SetAttributes(attribute.Int("spot.id", ticket.SpotID))
		span.AddEvent("vehicle_found")
	}

	ins.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))

	return ticket, err
}

// outcome gives a low-cardinality status label for err.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNoSpotAvailable):
		return "full"
	case errors.Is(err, ErrVehicleAlreadyParked):
		return "already_parked"
	case errors.Is(err, ErrNoOpenTicket):
		return "not_found"
	case errors.Is(err, ErrInvalidSelection), errors.Is(err, ErrInvalidRegistration):
		return "invalid_input"
	default:
		return "failed"
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
