package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
	"github.com/alanyoungcy/ticketraffle/internal/server/middleware"
	"github.com/alanyoungcy/ticketraffle/internal/service"
)

// RaffleAPI is the raffle surface the HTTP layer needs.
type RaffleAPI interface {
	Status() service.RaffleStatus
	Round(roundID uint64) (service.RoundView, error)
	Winner(roundID uint64) (common.Address, error)
	LotteryID() uint64
	TicketBalance(ctx context.Context, holder common.Address, roundID uint64) (uint64, error)
	HeldTickets(holder common.Address, roundID uint64) (uint64, error)
	RewardBalance(ctx context.Context, holder common.Address) (uint64, error)
	BuyTicket(ctx context.Context, buyer common.Address, count uint64) (domain.Receipt, error)
	SetMaxBuy(ctx context.Context, caller common.Address, n uint64) (domain.Params, error)
	SetSwapPercent(ctx context.Context, caller common.Address, pct uint64) (domain.Params, error)
}

// RaffleHandler serves the raffle's query, purchase and admin routes.
type RaffleHandler struct {
	api    RaffleAPI
	logger *slog.Logger
}

// NewRaffleHandler creates a RaffleHandler.
func NewRaffleHandler(api RaffleAPI, logger *slog.Logger) *RaffleHandler {
	return &RaffleHandler{api: api, logger: logHandler(logger, "raffle")}
}

// GetRaffle returns the price, active round, remaining tickets and limits.
// GET /api/raffle
func (h *RaffleHandler) GetRaffle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.api.Status())
}

// GetRound returns a round with its holdings.
// GET /api/rounds/{id}
func (h *RaffleHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	id, err := roundParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	v, err := h.api.Round(id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetWinner returns the winner of a settled round.
// GET /api/rounds/{id}/winner
func (h *RaffleHandler) GetWinner(w http.ResponseWriter, r *http.Request) {
	id, err := roundParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	winner, err := h.api.Winner(id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"round_id": id, "winner": winner.Hex()})
}

// GetTickets returns a holder's tickets in a round, the active one unless
// ?round= is given.
// GET /api/holders/{address}/tickets
func (h *RaffleHandler) GetTickets(w http.ResponseWriter, r *http.Request) {
	holder, ok := addressParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	roundID := h.api.LotteryID()
	if raw := r.URL.Query().Get("round"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid round")
			return
		}
		roundID = n
	}
	held, err := h.api.HeldTickets(holder, roundID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	balance, err := h.api.TicketBalance(r.Context(), holder, roundID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"holder":   holder.Hex(),
		"round_id": roundID,
		"tickets":  held,
		"balance":  balance,
	})
}

// GetRewards returns how many reward tokens a holder owns.
// GET /api/holders/{address}/rewards
func (h *RaffleHandler) GetRewards(w http.ResponseWriter, r *http.Request) {
	holder, ok := addressParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	n, err := h.api.RewardBalance(r.Context(), holder)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"holder": holder.Hex(), "rewards": n})
}

type buyRequest struct {
	Count uint64 `json:"count"`
}

type receiptResponse struct {
	SaleID        uint64 `json:"sale_id"`
	RoundID       uint64 `json:"round_id"`
	Buyer         string `json:"buyer"`
	Tickets       uint64 `json:"tickets"`
	Gross         string `json:"gross"`
	SwapAmountIn  string `json:"swap_amount_in"`
	SwappedAmount string `json:"swapped_amount"`
	TotalTickets  uint64 `json:"total_tickets"`
	RoundSettled  bool   `json:"round_settled"`
	Winner        string `json:"winner,omitempty"`
	RewardToken   string `json:"reward_token,omitempty"`
	NextRoundID   uint64 `json:"next_round_id,omitempty"`
}

// BuyTickets sells tickets to the signed caller.
// POST /api/tickets
func (h *RaffleHandler) BuyTickets(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unsigned request")
		return
	}
	var req buyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rcpt, err := h.api.BuyTicket(r.Context(), caller, req.Count)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	s := rcpt.Sale
	resp := receiptResponse{
		SaleID:        s.Seq,
		RoundID:       s.RoundID,
		Buyer:         s.Buyer.Hex(),
		Tickets:       s.Tickets,
		Gross:         s.Gross.String(),
		SwapAmountIn:  s.Settlement.SwapAmountIn.String(),
		SwappedAmount: s.Settlement.SwappedAmount.String(),
		TotalTickets:  rcpt.TotalTickets,
		RoundSettled:  rcpt.RoundSettled,
		NextRoundID:   rcpt.NextRoundID,
	}
	if rcpt.Reward != nil {
		resp.Winner = rcpt.Winner.Hex()
		resp.RewardToken = rcpt.Reward.TokenID.String()
	}
	writeJSON(w, http.StatusCreated, resp)
}

type valueRequest struct {
	Value *uint64 `json:"value"`
}

// SetMaxBuy changes the per-purchase limit. Admin only.
// PUT /api/admin/max-buy
func (h *RaffleHandler) SetMaxBuy(w http.ResponseWriter, r *http.Request) {
	h.modify(w, r, h.api.SetMaxBuy)
}

// SetSwapPercent changes the swapped share of proceeds. Admin only.
// PUT /api/admin/swap-percent
func (h *RaffleHandler) SetSwapPercent(w http.ResponseWriter, r *http.Request) {
	h.modify(w, r, h.api.SetSwapPercent)
}

func (h *RaffleHandler) modify(w http.ResponseWriter, r *http.Request, set func(context.Context, common.Address, uint64) (domain.Params, error)) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unsigned request")
		return
	}
	var req valueRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	p, err := set(r.Context(), caller, *req.Value)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p.View())
}
