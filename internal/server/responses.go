package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"parking-ticket/internal/parking"
)

type Meta struct {
	TraceID   string `json:"trace_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

type EntryRequest struct {
	Registration string `json:"registration"`
	VehicleType  string `json:"vehicle_type"`
}

type ExitRequest struct {
	Registration string `json:"registration"`
}

type TicketResponse struct {
	TicketID     int64      `json:"ticket_id"`
	SpotNumber   int        `json:"spot_number"`
	Registration string     `json:"registration"`
	VehicleType  string     `json:"vehicle_type"`
	EntryTime    time.Time  `json:"entry_time"`
	ExitTime     *time.Time `json:"exit_time,omitempty"`
	Price        string     `json:"price"`
}

type EntryResponse struct {
	TicketResponse
	FrequentUser bool `json:"frequent_user"`
}

type ExitResponse struct {
	TicketResponse
	Hours        string `json:"hours"`
	RatePerHour  string `json:"rate_per_hour"`
	Discounted   bool   `json:"discounted"`
	FrequentUser bool   `json:"frequent_user"`
}

func newTicketResponse(t parking.Ticket) TicketResponse {
	return TicketResponse{
		TicketID:     t.ID,
		SpotNumber:   t.SpotID,
		Registration: t.Registration,
		VehicleType:  t.VehicleType.String(),
		EntryTime:    t.EntryTime,
		ExitTime:     t.ExitTime,
		Price:        parking.FormatPrice(t.Price),
	}
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func extractMeta(ctx context.Context) *Meta {
	meta := &Meta{}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		meta.TraceID = span.SpanContext().TraceID().String()
	}

	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		meta.RequestID = reqID
	}

	return meta
}

func WriteSuccess(ctx context.Context, w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, Response{
		Success: true,
		Message: message,
		Data:    data,
		Meta:    extractMeta(ctx),
	})
}

func WriteError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Response{
		Success: false,
		Error:   message,
		Meta:    extractMeta(ctx),
	})
}
