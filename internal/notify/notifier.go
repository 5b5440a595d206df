// Package notify forwards raffle events to chat channels. Operators pick
// which event kinds they want; winner announcements are the usual choice.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier renders raffle events and dispatches them to every Sender.
type Notifier struct {
	senders []Sender
	events  map[domain.EventKind]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to senders. Only the listed event
// kinds are forwarded; an empty list allows every kind.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventKind]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventKind(e)] = true
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether the notifier has anywhere to send.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Publish forwards every allowed event in the batch.
func (n *Notifier) Publish(ctx context.Context, events []domain.Event) error {
	var errs []error
	for _, ev := range events {
		if len(n.events) > 0 && !n.events[ev.Kind] {
			continue
		}
		title, msg := Format(ev)
		if err := n.dispatch(ctx, title, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyAll sends a free-form message regardless of the event filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch tries every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// Format renders an event as a title and a message body.
func Format(ev domain.Event) (string, string) {
	switch ev.Kind {
	case domain.EventWinner:
		return fmt.Sprintf("Round %d winner", ev.RoundID),
			fmt.Sprintf("%s won round %d.", addr(ev.Winner), ev.RoundID)
	case domain.EventRoundCreated:
		return fmt.Sprintf("Round %d open", ev.RoundID), "Tickets are on sale."
	case domain.EventTicketSale:
		return fmt.Sprintf("Round %d sale", ev.RoundID),
			fmt.Sprintf("%s paid %s, %d tickets sold.", addr(ev.Buyer), amount(ev.TicketPrice), ev.TotalTickets)
	case domain.EventSwapped:
		return fmt.Sprintf("Round %d swap", ev.RoundID),
			fmt.Sprintf("Swapped %s into %s for the treasury.", amount(ev.SwapAmountIn), amount(ev.SwappedAmount))
	case domain.EventParamsModified:
		if ev.Params == nil {
			return "Parameters changed", ""
		}
		return "Parameters changed", fmt.Sprintf("max per purchase %d, swap percent %d%%.",
			ev.Params.MaxPerPurchase, ev.Params.SwapPercent)
	default:
		return string(ev.Kind), fmt.Sprintf("round %d", ev.RoundID)
	}
}

func addr(a *common.Address) string {
	if a == nil {
		return "unknown"
	}
	return a.Hex()
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
