package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"parking-ticket/internal/logging"
	"parking-ticket/internal/parking"
)

const maxBodyBytes = 4 << 10

type Handler struct {
	service     parking.TicketService
	serviceName string
	logger      *slog.Logger
}

func NewHandler(service parking.TicketService, serviceName string, logger *slog.Logger) *Handler {
	return &Handler{
		service:     service,
		serviceName: serviceName,
		logger:      logger,
	}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": h.serviceName,
		"meta":    extractMeta(r.Context()),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(r.Context(), w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		WriteError(r.Context(), w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (h *Handler) Enter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req EntryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.service.HandleEntry(ctx, req.Registration, req.VehicleType)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	message := "Please park your vehicle in spot number:" + strconv.Itoa(result.Ticket.SpotID)
	if result.FrequentUser {
		message = "Welcome back! As a regular user of our parking, you will receive a 5% discount. " + message
	}

	WriteSuccess(ctx, w, http.StatusCreated, message, EntryResponse{
		TicketResponse: newTicketResponse(result.Ticket),
		FrequentUser:   result.FrequentUser,
	})
}

func (h *Handler) Exit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ExitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.service.HandleExit(ctx, req.Registration)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	message := "Please pay the parking fare:" + parking.FormatPrice(result.Ticket.Price)
	if result.FrequentUser {
		message = "Thank you for your loyalty ! " + message
	}

	WriteSuccess(ctx, w, http.StatusOK, message, ExitResponse{
		TicketResponse: newTicketResponse(result.Ticket),
		Hours:          result.Quote.Hours.StringFixed(2),
		RatePerHour:    result.Quote.RatePerHour.StringFixed(2),
		Discounted:     result.Quote.Discounted,
		FrequentUser:   result.FrequentUser,
	})
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	registration := chi.URLParam(r, "registration")
	ticket, err := h.service.OpenTicket(ctx, registration)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	WriteSuccess(ctx, w, http.StatusOK, "Vehicle found", newTicketResponse(ticket))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), h.logger).Error("parking operation failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	WriteError(r.Context(), w, status, parking.Message(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, parking.ErrInvalidSelection), errors.Is(err, parking.ErrInvalidRegistration):
		return http.StatusBadRequest
	case errors.Is(err, parking.ErrNoOpenTicket):
		return http.StatusNotFound
	case errors.Is(err, parking.ErrVehicleAlreadyParked), errors.Is(err, parking.ErrNoSpotAvailable):
		return http.StatusConflict
	case errors.Is(err, parking.ErrInvalidInterval), errors.Is(err, parking.ErrMissingVehicleType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, parking.ErrTicketUpdateFailed), errors.Is(err, parking.ErrCollaboratorUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
