// Package metrics exposes Prometheus collectors for the raffle daemon.
package metrics

import (
	"errors"
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ticketraffle_build_info",
			Help: "Build information of the raffle daemon",
		},
		[]string{"version", "mode"},
	)

	TicketsSold = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketraffle_tickets_sold_total",
			Help: "Tickets sold across all rounds",
		},
	)

	PurchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketraffle_purchases_total",
			Help: "Ticket purchase attempts by outcome",
		},
		[]string{"outcome"},
	)

	SwapInTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketraffle_swap_in_units_total",
			Help: "Price token base units sent to the exchange",
		},
	)

	SwapOutTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketraffle_swap_out_units_total",
			Help: "Swap token base units forwarded to the treasury",
		},
	)

	RoundsSettled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketraffle_rounds_settled_total",
			Help: "Rounds that reached capacity and drew a winner",
		},
	)

	ActiveRoundID = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticketraffle_active_round_id",
			Help: "Identifier of the round currently on sale",
		},
	)

	ActiveRoundTickets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticketraffle_active_round_tickets",
			Help: "Tickets sold in the active round",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketraffle_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticketraffle_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Observe updates the sales collectors from a batch of committed events.
func Observe(events []domain.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case domain.EventTicketSale:
			ActiveRoundID.Set(float64(ev.RoundID))
			ActiveRoundTickets.Set(float64(ev.TotalTickets))
		case domain.EventSwapped:
			SwapInTotal.Add(units(ev.SwapAmountIn))
			SwapOutTotal.Add(units(ev.SwappedAmount))
		case domain.EventRoundCreated:
			ActiveRoundID.Set(float64(ev.RoundID))
			ActiveRoundTickets.Set(0)
		case domain.EventWinner:
			RoundsSettled.Inc()
		}
	}
}

// ObservePurchase counts one purchase attempt.
func ObservePurchase(tickets uint64, err error) {
	PurchasesTotal.WithLabelValues(Outcome(err)).Inc()
	if err == nil {
		TicketsSold.Add(float64(tickets))
	}
}

// Outcome is the label used for a purchase result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrExceedsMaxPurchase), errors.Is(err, domain.ErrExceedsCapacity),
		errors.Is(err, domain.ErrInvalidParameter):
		return "rejected"
	case errors.Is(err, domain.ErrInsufficientFunds), errors.Is(err, domain.ErrInsufficientAllowance):
		return "unfunded"
	case errors.Is(err, domain.ErrSwapFailed):
		return "swap_failed"
	case errors.Is(err, domain.ErrCommitFailed):
		return "commit_failed"
	default:
		return "error"
	}
}

func units(v *big.Int) float64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
