// Package service adapts the raffle manager to its callers: it records
// outcomes in metrics and the audit log, and fans committed events out to
// the rest of the system.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
	"github.com/alanyoungcy/ticketraffle/internal/metrics"
	"github.com/alanyoungcy/ticketraffle/internal/raffle"
)

// RaffleStatus is the public state of the raffle.
type RaffleStatus struct {
	TicketPrice     string `json:"ticket_price"`
	LotteryID       uint64 `json:"lottery_id"`
	LeftTicketCnt   uint64 `json:"left_ticket_cnt"`
	MaxBuyTicketCnt uint64 `json:"max_buy_ticket_cnt"`
	SwapPercent     uint8  `json:"swap_percent"`
	Capacity        uint64 `json:"capacity"`
	Admin           string `json:"admin"`
	Treasury        string `json:"treasury"`
}

// HoldingView is one holder's tickets in a round.
type HoldingView struct {
	Holder  string `json:"holder"`
	Tickets uint64 `json:"tickets"`
}

// RoundView is a round with its holdings and, once settled, its winner.
type RoundView struct {
	ID          uint64        `json:"id"`
	Status      string        `json:"status"`
	TicketPrice string        `json:"ticket_price"`
	Capacity    uint64        `json:"capacity"`
	TicketsSold uint64        `json:"tickets_sold"`
	Winner      string        `json:"winner,omitempty"`
	RewardToken string        `json:"reward_token,omitempty"`
	Holdings    []HoldingView `json:"holdings"`
}

// RaffleService is the entry point used by the HTTP API.
type RaffleService struct {
	mgr    *raffle.Manager
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewRaffleService wraps mgr. audit may be nil.
func NewRaffleService(mgr *raffle.Manager, audit domain.AuditStore, logger *slog.Logger) *RaffleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RaffleService{mgr: mgr, audit: audit, logger: logger.With(slog.String("component", "raffle_service"))}
}

// Status returns the raffle's current parameters and active round.
func (s *RaffleService) Status() RaffleStatus {
	p := s.mgr.Params()
	return RaffleStatus{
		TicketPrice:     s.mgr.TicketPrice().String(),
		LotteryID:       s.mgr.LotteryID(),
		LeftTicketCnt:   s.mgr.LeftTicketCnt(),
		MaxBuyTicketCnt: p.MaxPerPurchase,
		SwapPercent:     p.SwapPercent,
		Capacity:        s.mgr.ActiveRound().Capacity,
		Admin:           s.mgr.Admin().Hex(),
		Treasury:        s.mgr.Treasury().Hex(),
	}
}

// Round returns a round and its holdings.
func (s *RaffleService) Round(roundID uint64) (RoundView, error) {
	r, err := s.mgr.Round(roundID)
	if err != nil {
		return RoundView{}, err
	}
	holdings, err := s.mgr.Holdings(roundID)
	if err != nil {
		return RoundView{}, err
	}
	v := RoundView{
		ID:          r.ID,
		Status:      string(r.Status),
		TicketPrice: r.TicketPrice.String(),
		Capacity:    r.Capacity,
		TicketsSold: r.TicketsSold,
		Holdings:    make([]HoldingView, 0, len(holdings)),
	}
	for _, h := range holdings {
		v.Holdings = append(v.Holdings, HoldingView{Holder: h.Holder.Hex(), Tickets: h.Tickets})
	}
	if r.Settled() {
		rw, err := s.mgr.Reward(roundID)
		if err != nil {
			return RoundView{}, err
		}
		v.Winner = rw.Winner.Hex()
		v.RewardToken = rw.TokenID.String()
	}
	return v, nil
}

// Winner returns the winner of a settled round.
func (s *RaffleService) Winner(roundID uint64) (common.Address, error) {
	return s.mgr.GetWinner(roundID)
}

// LotteryID returns the active round's ID.
func (s *RaffleService) LotteryID() uint64 {
	return s.mgr.LotteryID()
}

// TicketBalance returns holder's ticket balance for a round as reported by
// the ticket issuer.
func (s *RaffleService) TicketBalance(ctx context.Context, holder common.Address, roundID uint64) (uint64, error) {
	return s.mgr.TicketBalance(ctx, holder, roundID)
}

// HeldTickets returns holder's tickets in a round from the raffle's ledger.
func (s *RaffleService) HeldTickets(holder common.Address, roundID uint64) (uint64, error) {
	return s.mgr.HeldTickets(holder, roundID)
}

// RewardBalance returns how many rewards holder owns.
func (s *RaffleService) RewardBalance(ctx context.Context, holder common.Address) (uint64, error) {
	return s.mgr.RewardBalance(ctx, holder)
}

// BuyTicket sells count tickets to buyer.
func (s *RaffleService) BuyTicket(ctx context.Context, buyer common.Address, count uint64) (domain.Receipt, error) {
	rcpt, err := s.mgr.BuyTicket(ctx, buyer, count)
	metrics.ObservePurchase(count, err)
	if err != nil {
		s.logger.WarnContext(ctx, "purchase failed",
			slog.String("buyer", buyer.Hex()),
			slog.Uint64("count", count),
			slog.String("outcome", metrics.Outcome(err)),
			slog.String("error", err.Error()),
		)
		s.auditFailure(ctx, "purchase_failed", map[string]any{
			"buyer": buyer.Hex(), "count": count, "error": err.Error(),
		})
		return domain.Receipt{}, err
	}
	return rcpt, nil
}

// SetMaxBuy changes the per-purchase ticket limit.
func (s *RaffleService) SetMaxBuy(ctx context.Context, caller common.Address, n uint64) (domain.Params, error) {
	p, err := s.mgr.ModifyMaxBuyTicketCnt(ctx, caller, n)
	if err != nil {
		s.rejected(ctx, "max_buy", caller, n, err)
	}
	return p, err
}

// SetSwapPercent changes the share of proceeds swapped to the treasury.
func (s *RaffleService) SetSwapPercent(ctx context.Context, caller common.Address, pct uint64) (domain.Params, error) {
	p, err := s.mgr.ModifySwapPercent(ctx, caller, pct)
	if err != nil {
		s.rejected(ctx, "swap_percent", caller, pct, err)
	}
	return p, err
}

func (s *RaffleService) rejected(ctx context.Context, param string, caller common.Address, value uint64, err error) {
	event := "params_rejected"
	if errors.Is(err, domain.ErrUnauthorized) {
		event = "params_unauthorized"
	}
	s.logger.WarnContext(ctx, "parameter change rejected",
		slog.String("param", param),
		slog.String("caller", caller.Hex()),
		slog.String("error", err.Error()),
	)
	s.auditFailure(ctx, event, map[string]any{
		"param": param, "caller": caller.Hex(), "value": value, "error": err.Error(),
	})
}

func (s *RaffleService) auditFailure(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(context.WithoutCancel(ctx), event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
