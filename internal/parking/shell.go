package parking

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"parking-ticket/internal/logging"
)

const shellTimeLayout = time.RFC1123

// Shell is the operator console. Each line is one command.
type Shell struct {
	service   TicketService
	telemetry *TelemetryProvider
	logger    *slog.Logger
	scanner   *bufio.Scanner
	out       io.Writer
}

func NewShell(service TicketService, telemetry *TelemetryProvider, logger *slog.Logger, in io.Reader, out io.Writer) *Shell {
	if logger == nil {
		logger = slog.Default()
	}
	return &Shell{
		service:   service,
		telemetry: telemetry,
		logger:    logger,
		scanner:   bufio.NewScanner(in),
		out:       out,
	}
}

// Run reads commands until the input ends, "quit" is entered or ctx is
// cancelled.
func (s *Shell) Run(ctx context.Context) error {
	tracer := s.telemetry.Tracer()
	ctx, span := tracer.Start(ctx, "shell.run")
	defer span.End()

	span.AddEvent("shell_started")
	s.printHelp()

	for s.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		input := strings.TrimSpace(s.scanner.Text())
		if input == "" {
			continue
		}
		if strings.EqualFold(input, "quit") {
			s.println("Exiting from the system!")
			break
		}

		cmdCtx, cmdSpan := tracer.Start(ctx, "shell.process_command",
			trace.WithAttributes(attribute.String("command.input", input)))
		s.processCommand(cmdCtx, input)
		cmdSpan.End()
	}

	span.AddEvent("shell_ended")
	return s.scanner.Err()
}

func (s *Shell) processCommand(ctx context.Context, input string) {
	parts := strings.Fields(input)
	command := strings.ToLower(parts[0])
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("command.name", command))

	switch command {
	case "enter":
		s.handleEnter(ctx, parts)
	case "exit":
		s.handleExit(ctx, parts)
	case "ticket":
		s.handleTicket(ctx, parts)
	case "help":
		s.printHelp()
	default:
		trace.SpanFromContext(ctx).AddEvent("unknown_command")
		s.printf("Unknown command: %s\n", command)
	}
}

func (s *Shell) handleEnter(ctx context.Context, parts []string) {
	if len(parts) != 3 {
		s.println("Usage: enter <registration_number> <1|2|CAR|BIKE>")
		return
	}

	result, err := s.service.HandleEntry(ctx, parts[1], parts[2])
	if err != nil {
		s.fail(ctx, "Unable to process incoming vehicle", err)
		return
	}

	if result.FrequentUser {
		s.println("Welcome back! As a regular user of our parking, you will receive a 5% discount.")
	}
	s.println("Generated Ticket and saved in DB")
	s.printf("Please park your vehicle in spot number:%d\n", result.Ticket.SpotID)
	s.printf("Recorded in-time for vehicle number:%s is:%s\n",
		result.Ticket.Registration, result.Ticket.EntryTime.Format(shellTimeLayout))
}

func (s *Shell) handleExit(ctx context.Context, parts []string) {
	if len(parts) != 2 {
		s.println("Usage: exit <registration_number>")
		return
	}

	result, err := s.service.HandleExit(ctx, parts[1])
	if err != nil {
		s.fail(ctx, "Unable to process exiting vehicle", err)
		return
	}

	if result.FrequentUser {
		s.println("Thank you for your loyalty !")
	}
	s.printf("Please pay the parking fare:%s\n", FormatPrice(result.Ticket.Price))
	if result.Ticket.ExitTime != nil {
		s.printf("Recorded out-time for vehicle number:%s is:%s\n",
			result.Ticket.Registration, result.Ticket.ExitTime.Format(shellTimeLayout))
	}
}

func (s *Shell) handleTicket(ctx context.Context, parts []string) {
	if len(parts) != 2 {
		s.println("Usage: ticket <registration_number>")
		return
	}

	ticket, err := s.service.OpenTicket(ctx, parts[1])
	if err != nil {
		s.fail(ctx, "Unable to look up ticket", err)
		return
	}

	s.printf("Ticket %d: vehicle %s (%s) in spot number:%d since %s\n",
		ticket.ID, ticket.Registration, ticket.VehicleType, ticket.SpotID,
		ticket.EntryTime.Format(shellTimeLayout))
}

// fail prints the driver-facing message. Store failures are also logged.
func (s *Shell) fail(ctx context.Context, msg string, err error) {
	if errors.Is(err, ErrCollaboratorUnavailable) || errors.Is(err, ErrTicketUpdateFailed) {
		logging.WithContext(ctx, s.logger).Error(msg, slog.Any("error", err))
	}
	s.println(Message(err))
}

func (s *Shell) printHelp() {
	s.println("Commands:")
	s.println("  enter <registration_number> <vehicle_type>   1 CAR, 2 BIKE")
	s.println("  exit <registration_number>")
	s.println("  ticket <registration_number>")
	s.println("  help")
	s.println("  quit")
}

func (s *Shell) println(line string) {
	fmt.Fprintln(s.out, line)
}

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}
