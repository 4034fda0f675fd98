package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"parking-ticket/internal/clock"
	"parking-ticket/internal/logging"
	"parking-ticket/internal/parking"
	"parking-ticket/internal/storage/memory"
)

var start = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

type testServer struct {
	handler http.Handler
	clock   *clock.Manual
	spans   *tracetest.SpanRecorder
	tickets *memory.TicketBook
}

func newTestServer(t *testing.T, service func(parking.TicketService) parking.TicketService) *testServer {
	t.Helper()

	clk := clock.NewManual(start)
	tickets := memory.NewTicketBook()
	var svc parking.TicketService = parking.NewOrchestrator(
		memory.NewSpotPool(map[parking.VehicleType]int{parking.Car: 1, parking.Bike: 1}),
		tickets,
		parking.NewFareCalculator(parking.DefaultFareSchedule()),
		clk,
		logging.Discard(),
	)
	if service != nil {
		svc = service(svc)
	}

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	srv := NewServer(Options{
		Port:        "0",
		ServiceName: "parking-test",
		Service:     svc,
		Telemetry:   parking.NewTelemetryProviderWith("parking-test", tp, noop.NewMeterProvider()),
		Registry:    prometheus.NewRegistry(),
		Logger:      logging.Discard(),
	})

	return &testServer{handler: srv.Handler(), clock: clk, spans: spans, tickets: tickets}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, _ := ts.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.Contains(t, rec.Body.String(), `"service":"parking-test"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestEntryAndExit(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, resp := ts.do(t, http.MethodPost, "/api/parking/entry", `{"registration":"ABCDEF","vehicle_type":"1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)
	assert.Equal(t, "Please park your vehicle in spot number:1", resp.Message)

	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(1), data["spot_number"])
	assert.Equal(t, "CAR", data["vehicle_type"])
	assert.Equal(t, "0.00", data["price"])
	assert.Equal(t, false, data["frequent_user"])

	rec, resp = ts.do(t, http.MethodGet, "/api/parking/tickets/ABCDEF", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ABCDEF", resp.Data.(map[string]any)["registration"])

	ts.clock.Advance(time.Hour)

	rec, resp = ts.do(t, http.MethodPost, "/api/parking/exit", `{"registration":"ABCDEF"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Please pay the parking fare:1.50", resp.Message)

	data = resp.Data.(map[string]any)
	assert.Equal(t, "1.50", data["price"])
	assert.Equal(t, "1.00", data["hours"])
	assert.Equal(t, "1.50", data["rate_per_hour"])
	assert.NotNil(t, data["exit_time"])

	rec, _ = ts.do(t, http.MethodGet, "/api/parking/tickets/ABCDEF", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFrequentUserMessages(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		opened, err := ts.tickets.OpenTicket(ctx, parking.Ticket{SpotID: 1, VehicleType: parking.Car, Registration: "ABCDEF", EntryTime: start.Add(-48 * time.Hour)})
		require.NoError(t, err)
		out := start.Add(-47 * time.Hour)
		opened.ExitTime = &out
		require.NoError(t, ts.tickets.CloseTicket(ctx, opened))
	}

	rec, resp := ts.do(t, http.MethodPost, "/api/parking/entry", `{"registration":"ABCDEF","vehicle_type":"CAR"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, strings.HasPrefix(resp.Message, "Welcome back!"))

	ts.clock.Advance(time.Hour)

	rec, resp = ts.do(t, http.MethodPost, "/api/parking/exit", `{"registration":"ABCDEF"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Thank you for your loyalty ! Please pay the parking fare:1.43", resp.Message)
	assert.Equal(t, true, resp.Data.(map[string]any)["discounted"])
}

func TestErrorStatusCodes(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		status  int
		message string
	}{
		{"malformed body", http.MethodPost, "/api/parking/entry", `{`, http.StatusBadRequest, "Invalid request body"},
		{"bad selection", http.MethodPost, "/api/parking/entry", `{"registration":"ABCDEF","vehicle_type":"3"}`, http.StatusBadRequest, parking.Message(parking.ErrInvalidSelection)},
		{"blank registration", http.MethodPost, "/api/parking/exit", `{"registration":" "}`, http.StatusBadRequest, parking.Message(parking.ErrInvalidRegistration)},
		{"first bike", http.MethodPost, "/api/parking/entry", `{"registration":"BIKE-1","vehicle_type":"2"}`, http.StatusCreated, ""},
		{"pool full", http.MethodPost, "/api/parking/entry", `{"registration":"BIKE-2","vehicle_type":"2"}`, http.StatusConflict, parking.Message(parking.ErrNoSpotAvailable)},
		{"already parked", http.MethodPost, "/api/parking/entry", `{"registration":"BIKE-1","vehicle_type":"1"}`, http.StatusConflict, parking.Message(parking.ErrVehicleAlreadyParked)},
		{"no open ticket", http.MethodPost, "/api/parking/exit", `{"registration":"GHIJKL"}`, http.StatusNotFound, parking.Message(parking.ErrNoOpenTicket)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.message, resp.Error)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(parking.ErrInvalidInterval))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(parking.ErrMissingVehicleType))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(parking.ErrTicketUpdateFailed))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(parking.ErrCollaboratorUnavailable))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

type panickingService struct {
	parking.TicketService
}

func (panickingService) OpenTicket(context.Context, string) (parking.Ticket, error) {
	panic("ledger exploded")
}

func TestRecoveryMiddleware(t *testing.T) {
	ts := newTestServer(t, func(svc parking.TicketService) parking.TicketService {
		return panickingService{svc}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/parking/tickets/ABCDEF", nil)
	req.Header.Set("X-Request-ID", "req-panic")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Internal server error", resp.Error)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, "req-panic", resp.Meta.RequestID)

	ended := ts.spans.Ended()
	require.NotEmpty(t, ended)
	span := ended[len(ended)-1]
	assert.Equal(t, "GET /api/parking/tickets/{registration}", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)

	var recorded bool
	for _, event := range span.Events() {
		if event.Name == "exception" {
			recorded = true
		}
	}
	assert.True(t, recorded, "panic should be recorded on the request span")
}

func TestOversizedBodyIsRejected(t *testing.T) {
	ts := newTestServer(t, nil)

	body := `{"registration":"ABCDEF","vehicle_type":"1","padding":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	rec, resp := ts.do(t, http.MethodPost, "/api/parking/entry", body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Request body too large", resp.Error)

	rec, _ = ts.do(t, http.MethodGet, "/api/parking/tickets/ABCDEF", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), `"request_id":"req-123"`)
}

func TestTracingUsesRoutePattern(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.do(t, http.MethodGet, "/api/parking/tickets/ABCDEF", "")

	ended := ts.spans.Ended()
	require.NotEmpty(t, ended)
	assert.Equal(t, "GET /api/parking/tickets/{registration}", ended[len(ended)-1].Name())
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)

	rec, _ := ts.do(t, http.MethodOptions, "/api/parking/entry", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.do(t, http.MethodGet, "/health", "")
	rec, _ := ts.do(t, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, rec.Body.String(), "http_request_duration_seconds")
}
