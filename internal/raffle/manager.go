package raffle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// DefaultLockKey is the distributed lock shared by every replica.
const DefaultLockKey = "raffle:ops"

// EventSink receives the observations of a committed operation, in order.
type EventSink interface {
	Publish(ctx context.Context, events []domain.Event)
}

// Config wires a Manager. Params seeds the raffle the first time it starts
// against an empty store; afterwards the stored params win.
type Config struct {
	Admin    common.Address
	Params   domain.Params
	Custody  common.Address // account that receives ticket proceeds
	Currency domain.Currency
	Bridge   *Bridge
	Tickets  domain.TicketIssuer
	Rewards  domain.RewardIssuer
	Entropy  domain.EntropySource
	Store    domain.RaffleStore
	Locks    domain.LockManager // optional
	LockKey  string
	LockTTL  time.Duration
	Sink     EventSink // optional
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// Manager runs the round lifecycle: ticket sales, settlement of proceeds,
// winner draws and rollover into the next round. Mutating operations are
// serialized and all-or-nothing.
type Manager struct {
	registry *Registry
	custody  common.Address
	currency domain.Currency
	bridge   *Bridge
	tickets  domain.TicketIssuer
	rewards  domain.RewardIssuer
	selector *Selector
	store    domain.RaffleStore
	locks    domain.LockManager
	lockKey  string
	lockTTL  time.Duration
	sink     EventSink
	clock    clockwork.Clock
	logger   *slog.Logger

	sem chan struct{}

	mu sync.RWMutex
	st *state
}

// NewManager loads stored state, or opens round 1 from cfg.Params when the
// store is empty.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	switch {
	case cfg.Currency == nil:
		return nil, fmt.Errorf("raffle: manager needs a currency: %w", domain.ErrInvalidParameter)
	case cfg.Bridge == nil:
		return nil, fmt.Errorf("raffle: manager needs a settlement bridge: %w", domain.ErrInvalidParameter)
	case cfg.Tickets == nil || cfg.Rewards == nil:
		return nil, fmt.Errorf("raffle: manager needs ticket and reward issuers: %w", domain.ErrInvalidParameter)
	case cfg.Entropy == nil:
		return nil, fmt.Errorf("raffle: manager needs an entropy source: %w", domain.ErrInvalidParameter)
	case cfg.Store == nil:
		return nil, fmt.Errorf("raffle: manager needs a store: %w", domain.ErrInvalidParameter)
	case cfg.Custody == (common.Address{}):
		return nil, fmt.Errorf("raffle: custody is the zero address: %w", domain.ErrInvalidParameter)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LockKey == "" {
		cfg.LockKey = DefaultLockKey
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}

	gate, err := NewAdminGate(cfg.Admin)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		custody:  cfg.Custody,
		currency: cfg.Currency,
		bridge:   cfg.Bridge,
		tickets:  cfg.Tickets,
		rewards:  cfg.Rewards,
		selector: NewSelector(cfg.Entropy),
		store:    cfg.Store,
		locks:    cfg.Locks,
		lockKey:  cfg.LockKey,
		lockTTL:  cfg.LockTTL,
		sink:     cfg.Sink,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With(slog.String("component", "raffle")),
		sem:      make(chan struct{}, 1),
	}

	stored, ok, err := cfg.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("raffle: load state: %w", err)
	}
	if ok {
		st, err := stateFrom(stored)
		if err != nil {
			return nil, err
		}
		if m.registry, err = NewRegistry(gate, stored.Params); err != nil {
			return nil, err
		}
		m.st = st
		active := st.active()
		m.logger.InfoContext(ctx, "raffle state loaded",
			slog.Uint64("round", active.ID),
			slog.Uint64("tickets_sold", active.TicketsSold),
			slog.Uint64("sale_seq", st.saleSeq),
		)
		return m, nil
	}

	if m.registry, err = NewRegistry(gate, cfg.Params); err != nil {
		return nil, err
	}
	first := openRound(1, cfg.Params, m.clock.Now())
	cs := domain.Changeset{Params: &cfg.Params, Rounds: []domain.Round{first}}
	if err := m.commit(ctx, cs); err != nil {
		return nil, fmt.Errorf("raffle: open round 1: %w", err)
	}
	m.st = newState()
	m.st.apply(cs)
	m.logger.InfoContext(ctx, "raffle initialised",
		slog.Uint64("round", first.ID),
		slog.String("ticket_price", first.TicketPrice.String()),
		slog.Uint64("capacity", first.Capacity),
	)
	m.publish(ctx, []domain.Event{{Kind: domain.EventRoundCreated, RoundID: first.ID, NewRoundID: first.ID, At: first.OpenedAt}})
	return m, nil
}

func openRound(id uint64, p domain.Params, at time.Time) domain.Round {
	return domain.Round{
		ID:          id,
		TicketPrice: new(big.Int).Set(p.TicketPrice),
		Capacity:    p.Capacity,
		Status:      domain.RoundStatusActive,
		OpenedAt:    at,
	}
}

// BuyTicket sells count tickets in the active round to buyer. Proceeds are
// pulled into custody, the swap slice is settled to the treasury, and a
// purchase that fills the round draws the winner, issues the reward and
// opens the next round. On any failure every effect is undone.
func (m *Manager) BuyTicket(ctx context.Context, buyer common.Address, count uint64) (domain.Receipt, error) {
	var rcpt domain.Receipt
	err := m.exclusive(ctx, "buy_ticket", func(ctx context.Context) error {
		var err error
		rcpt, err = m.buy(ctx, buyer, count)
		return err
	})
	return rcpt, err
}

func (m *Manager) buy(ctx context.Context, buyer common.Address, count uint64) (domain.Receipt, error) {
	if buyer == (common.Address{}) {
		return domain.Receipt{}, fmt.Errorf("raffle: buyer is the zero address: %w", domain.ErrInvalidParameter)
	}

	params := m.registry.Snapshot()
	m.mu.RLock()
	book := NewBook(m.st.active(), m.st.holdingsOf(m.st.active().ID))
	saleSeq := m.st.saleSeq + 1
	m.mu.RUnlock()

	// Everything below this point is staged; nothing is visible until the
	// store commits.
	total, err := book.RecordPurchase(buyer, count, params.MaxPerPurchase)
	if err != nil {
		return domain.Receipt{}, err
	}
	round := book.Round()
	now := m.clock.Now()
	gross := new(big.Int).Mul(round.TicketPrice, new(big.Int).SetUint64(count))
	sale := domain.Sale{
		Seq:       saleSeq,
		RoundID:   round.ID,
		Buyer:     buyer,
		Tickets:   count,
		Gross:     gross,
		CreatedAt: now,
	}
	cs := domain.Changeset{Holdings: book.Touched(), Sale: &sale, SaleSeq: saleSeq}

	log := m.logger.With(
		slog.Uint64("sale_seq", saleSeq),
		slog.Uint64("round", round.ID),
		slog.String("buyer", buyer.Hex()),
		slog.Uint64("count", count),
	)
	j := NewJournal(log)
	abort := func(err error) (domain.Receipt, error) {
		if rbErr := j.Rollback(ctx); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		log.WarnContext(ctx, "purchase aborted", slog.String("error", err.Error()))
		return domain.Receipt{}, err
	}

	// Once the first effect lands the purchase must run to commit or be
	// compensated; a caller that goes away cannot stop it halfway.
	if err := ctx.Err(); err != nil {
		return domain.Receipt{}, err
	}
	ctx = context.WithoutCancel(ctx)

	if err := m.currency.TransferFrom(ctx, buyer, m.custody, gross); err != nil {
		return abort(fmt.Errorf("raffle: pull %s from %s: %w", gross, buyer.Hex(), err))
	}
	refund := new(big.Int).Set(gross)
	j.Record("refund proceeds", func(ctx context.Context) error {
		if refund.Sign() == 0 {
			return nil
		}
		return m.currency.Transfer(ctx, buyer, refund)
	})

	if err := m.tickets.Mint(ctx, buyer, round.ID, count); err != nil {
		return abort(fmt.Errorf("raffle: mint %d tickets: %w", count, err))
	}
	j.Record("burn tickets", func(ctx context.Context) error {
		return m.tickets.Burn(ctx, buyer, round.ID, count)
	})

	var (
		reward *domain.RewardRecord
		next   *domain.Round
	)
	if round.Full() {
		winner, err := m.selector.SelectWinner(ctx, round, book.Holdings())
		if err != nil {
			return abort(err)
		}
		tokenID, err := m.rewards.Mint(ctx, winner)
		if err != nil {
			return abort(fmt.Errorf("raffle: mint reward for round %d: %w", round.ID, err))
		}
		j.Record("burn reward", func(ctx context.Context) error {
			return m.rewards.Burn(ctx, tokenID)
		})

		round.Status = domain.RoundStatusSettled
		round.SettledAt = &now
		reward = &domain.RewardRecord{RoundID: round.ID, Winner: winner, TokenID: tokenID, IssuedAt: now}
		nr := openRound(round.ID+1, params, now)
		next = &nr
		cs.Rounds = []domain.Round{round, nr}
		cs.Reward = reward
	} else {
		cs.Rounds = []domain.Round{round}
	}

	tx, err := m.store.Begin(ctx)
	if err != nil {
		return abort(fmt.Errorf("raffle: begin: %w", err))
	}
	if err := tx.Apply(ctx, cs); err != nil {
		m.rollbackTx(ctx, tx)
		return abort(fmt.Errorf("raffle: stage sale %d: %w", saleSeq, err))
	}

	// The swap cannot be compensated, so it is the last external effect.
	settlement, err := m.bridge.Settle(ctx, gross, params.SwapPercent)
	if err != nil {
		m.rollbackTx(ctx, tx)
		return abort(err)
	}
	sale.Settlement = settlement
	// Only the retained share is still in custody.
	refund.Sub(refund, settlement.SwapAmountIn)

	if err := tx.RecordSettlement(ctx, saleSeq, settlement); err != nil {
		m.rollbackTx(ctx, tx)
		return abort(m.lostSwap(ctx, saleSeq, settlement, err))
	}
	if err := tx.Commit(ctx); err != nil {
		return abort(m.lostSwap(ctx, saleSeq, settlement, err))
	}
	j.Discard()

	m.mu.Lock()
	m.st.apply(cs)
	m.mu.Unlock()

	rcpt := domain.Receipt{Sale: sale, TotalTickets: total}
	events := []domain.Event{
		{Kind: domain.EventTicketSale, RoundID: round.ID, SaleSeq: saleSeq, Buyer: &buyer,
			TicketPrice: gross, TotalTickets: total, At: now},
		{Kind: domain.EventSwapped, RoundID: round.ID, SaleSeq: saleSeq,
			SwapAmountIn: settlement.SwapAmountIn, SwappedAmount: settlement.SwappedAmount, At: now},
	}
	if reward != nil {
		rcpt.RoundSettled = true
		rcpt.Winner = reward.Winner
		rcpt.Reward = reward
		rcpt.NextRoundID = next.ID
		winner := reward.Winner
		events = append(events,
			domain.Event{Kind: domain.EventRoundCreated, RoundID: round.ID, NewRoundID: next.ID, At: now},
			domain.Event{Kind: domain.EventWinner, RoundID: round.ID, Winner: &winner, At: now},
		)
		log.InfoContext(ctx, "round settled",
			slog.String("winner", winner.Hex()),
			slog.String("reward_token", reward.TokenID.String()),
			slog.Uint64("next_round", next.ID),
		)
	}
	log.InfoContext(ctx, "tickets sold",
		slog.String("gross", gross.String()),
		slog.String("swap_in", settlement.SwapAmountIn.String()),
		slog.String("swapped", settlement.SwappedAmount.String()),
		slog.Uint64("total_tickets", total),
	)
	m.publish(ctx, events)
	return rcpt, nil
}

// lostSwap reports a commit failure that happened after the swap output
// already reached the treasury.
func (m *Manager) lostSwap(ctx context.Context, saleSeq uint64, s domain.Settlement, cause error) error {
	m.logger.ErrorContext(ctx, "sale not committed after swap",
		slog.Uint64("sale_seq", saleSeq),
		slog.String("swap_in", s.SwapAmountIn.String()),
		slog.String("swapped", s.SwappedAmount.String()),
		slog.String("treasury", s.Treasury.Hex()),
		slog.String("error", cause.Error()),
	)
	return fmt.Errorf("raffle: sale %d: %w: %w", saleSeq, domain.ErrCommitFailed, cause)
}

func (m *Manager) rollbackTx(ctx context.Context, tx domain.RaffleTx) {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		m.logger.WarnContext(ctx, "store rollback failed", slog.String("error", err.Error()))
	}
}

// ModifyMaxBuyTicketCnt sets the per-purchase ticket limit. Admin only.
func (m *Manager) ModifyMaxBuyTicketCnt(ctx context.Context, caller common.Address, n uint64) (domain.Params, error) {
	return m.modify(ctx, "modify_max_buy_ticket_cnt", caller, func() (domain.Params, error) {
		return m.registry.SetMaxPerPurchase(caller, n)
	})
}

// ModifySwapPercent sets the share of proceeds swapped to the treasury.
// Admin only.
func (m *Manager) ModifySwapPercent(ctx context.Context, caller common.Address, pct uint64) (domain.Params, error) {
	return m.modify(ctx, "modify_swap_percent", caller, func() (domain.Params, error) {
		return m.registry.SetSwapPercent(caller, pct)
	})
}

func (m *Manager) modify(ctx context.Context, op string, caller common.Address, propose func() (domain.Params, error)) (domain.Params, error) {
	var out domain.Params
	err := m.exclusive(ctx, op, func(ctx context.Context) error {
		p, err := propose()
		if err != nil {
			return err
		}
		if err := m.commit(ctx, domain.Changeset{Params: &p}); err != nil {
			return fmt.Errorf("raffle: %s: %w", op, err)
		}
		m.registry.install(p)
		out = p

		view := p.View()
		m.logger.InfoContext(ctx, "params modified",
			slog.String("op", op),
			slog.String("caller", caller.Hex()),
			slog.Uint64("max_per_purchase", p.MaxPerPurchase),
			slog.Int("swap_percent", int(p.SwapPercent)),
		)
		m.publish(ctx, []domain.Event{{
			Kind:    domain.EventParamsModified,
			RoundID: m.LotteryID(),
			Params:  &view,
			At:      m.clock.Now(),
		}})
		return nil
	})
	return out, err
}

// commit writes cs in its own transaction.
func (m *Manager) commit(ctx context.Context, cs domain.Changeset) error {
	tx, err := m.store.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.Apply(ctx, cs); err != nil {
		m.rollbackTx(ctx, tx)
		return err
	}
	return tx.Commit(ctx)
}

// reload replaces the in-memory view with the stored state. Another replica
// may have committed since this one last looked.
func (m *Manager) reload(ctx context.Context) error {
	stored, ok, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("reload state: %w", err)
	}
	if !ok {
		return fmt.Errorf("reload state: store is empty: %w", domain.ErrNotFound)
	}
	st, err := stateFrom(stored)
	if err != nil {
		return err
	}
	if err := stored.Params.Validate(); err != nil {
		return fmt.Errorf("reload state: %w", err)
	}
	m.registry.install(stored.Params)
	m.mu.Lock()
	m.st = st
	m.mu.Unlock()
	return nil
}

func (m *Manager) publish(ctx context.Context, events []domain.Event) {
	if m.sink == nil || len(events) == 0 {
		return
	}
	m.sink.Publish(context.WithoutCancel(ctx), events)
}

// TicketPrice returns the price of one ticket in the active round.
func (m *Manager) TicketPrice() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.active().TicketPrice
}

// LotteryID returns the active round's ID.
func (m *Manager) LotteryID() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.active().ID
}

// LeftTicketCnt returns how many tickets remain in the active round.
func (m *Manager) LeftTicketCnt() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.active().Left()
}

// MaxBuyTicketCnt returns the per-purchase ticket limit.
func (m *Manager) MaxBuyTicketCnt() uint64 {
	return m.registry.Snapshot().MaxPerPurchase
}

// SwapPercent returns the share of proceeds swapped to the treasury.
func (m *Manager) SwapPercent() uint8 {
	return m.registry.Snapshot().SwapPercent
}

// Params returns the current params snapshot.
func (m *Manager) Params() domain.Params {
	return m.registry.Snapshot()
}

// Admin returns the controller address.
func (m *Manager) Admin() common.Address {
	return m.registry.Admin()
}

// Treasury returns the address that receives swap output.
func (m *Manager) Treasury() common.Address {
	return m.bridge.Treasury()
}

// GetWinner returns the winner of a settled round.
func (m *Manager) GetWinner(roundID uint64) (common.Address, error) {
	rw, err := m.Reward(roundID)
	if err != nil {
		return common.Address{}, err
	}
	return rw.Winner, nil
}

// Reward returns the reward record of a settled round.
func (m *Manager) Reward(roundID uint64) (domain.RewardRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.st.round(roundID); !ok {
		return domain.RewardRecord{}, fmt.Errorf("raffle: round %d: %w", roundID, domain.ErrRoundNotFound)
	}
	rw, ok := m.st.rewards[roundID]
	if !ok {
		return domain.RewardRecord{}, fmt.Errorf("raffle: round %d: %w", roundID, domain.ErrRoundNotSettled)
	}
	return rw, nil
}

// Round returns the round with the given ID.
func (m *Manager) Round(roundID uint64) (domain.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.st.round(roundID)
	if !ok {
		return domain.Round{}, fmt.Errorf("raffle: round %d: %w", roundID, domain.ErrRoundNotFound)
	}
	return r, nil
}

// ActiveRound returns the round currently selling tickets.
func (m *Manager) ActiveRound() domain.Round {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.active()
}

// Holdings returns a round's holdings in first-purchase order.
func (m *Manager) Holdings(roundID uint64) ([]domain.Holding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.st.round(roundID); !ok {
		return nil, fmt.Errorf("raffle: round %d: %w", roundID, domain.ErrRoundNotFound)
	}
	return m.st.holdingsOf(roundID), nil
}

// HeldTickets returns holder's ticket count in a round from the ledger.
func (m *Manager) HeldTickets(holder common.Address, roundID uint64) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.st.round(roundID); !ok {
		return 0, fmt.Errorf("raffle: round %d: %w", roundID, domain.ErrRoundNotFound)
	}
	return m.st.ticketsOf(roundID, holder), nil
}

// TicketBalance asks the ticket issuer how many tickets holder owns in a
// round.
func (m *Manager) TicketBalance(ctx context.Context, holder common.Address, roundID uint64) (uint64, error) {
	if _, err := m.Round(roundID); err != nil {
		return 0, err
	}
	n, err := m.tickets.BalanceOf(ctx, holder, roundID)
	if err != nil {
		return 0, fmt.Errorf("raffle: ticket balance: %w", err)
	}
	return n, nil
}

// RewardBalance asks the reward issuer how many rewards holder owns.
func (m *Manager) RewardBalance(ctx context.Context, holder common.Address) (uint64, error) {
	n, err := m.rewards.BalanceOf(ctx, holder)
	if err != nil {
		return 0, fmt.Errorf("raffle: reward balance: %w", err)
	}
	return n, nil
}
