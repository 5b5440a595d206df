package raffle

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
	"github.com/alanyoungcy/ticketraffle/internal/platform/simchain"
	"github.com/alanyoungcy/ticketraffle/internal/store/memory"
)

var (
	admin = simchain.AddressOf("account:admin")
	alice = simchain.AddressOf("account:alice")
	bob   = simchain.AddressOf("account:bob")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedEntropy []byte

func (f fixedEntropy) Entropy(context.Context) ([]byte, error) { return f, nil }

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Publish(_ context.Context, events []domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

func (s *recordingSink) kinds() []domain.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventKind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

// hookedExchange lets a test run code in the middle of a swap.
type hookedExchange struct {
	domain.Exchange
	onSwap    func(ctx context.Context) error
	afterSwap func(ctx context.Context) error
	calls     int
}

func (h *hookedExchange) Swap(ctx context.Context, req domain.SwapRequest) (*big.Int, error) {
	h.calls++
	if h.onSwap != nil {
		if err := h.onSwap(ctx); err != nil {
			return nil, err
		}
	}
	out, err := h.Exchange.Swap(ctx, req)
	if err == nil && h.afterSwap != nil {
		err = h.afterSwap(ctx)
	}
	return out, err
}

type fixture struct {
	ctx      context.Context
	clock    *clockwork.FakeClock
	world    *simchain.World
	store    *memory.RaffleStore
	exchange *hookedExchange
	sink     *recordingSink
	entropy  fixedEntropy
	mgr      *Manager
}

func defaultParams(w *simchain.World) domain.Params {
	return domain.Params{
		TicketPrice:    w.Price.Units(1000),
		SwapPercent:    10,
		MaxPerPurchase: 2,
		Capacity:       8,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	w := simchain.NewWorld(clock)
	f := &fixture{
		ctx:      context.Background(),
		clock:    clock,
		world:    w,
		store:    memory.NewRaffleStore(),
		exchange: &hookedExchange{Exchange: w.Exchange()},
		sink:     &recordingSink{},
		entropy:  fixedEntropy("seed"),
	}
	w.Fund(alice, w.Price.Units(100_000))
	w.Fund(bob, w.Price.Units(100_000))
	f.mgr = f.newManager(t, nil)
	f.sink.reset()
	return f
}

func (f *fixture) newManager(t *testing.T, locks domain.LockManager) *Manager {
	t.Helper()
	bridge, err := NewBridge(BridgeConfig{
		Exchange: f.exchange,
		Source:   f.world.Price.Address(),
		Target:   f.world.Swap.Address(),
		Treasury: f.world.Treasury,
		Clock:    f.clock,
	})
	require.NoError(t, err)
	m, err := NewManager(f.ctx, Config{
		Admin:    admin,
		Params:   defaultParams(f.world),
		Custody:  f.world.Custody,
		Currency: f.world.Currency(),
		Bridge:   bridge,
		Tickets:  f.world.Tickets,
		Rewards:  f.world.Rewards,
		Entropy:  f.entropy,
		Store:    f.store,
		Locks:    locks,
		Sink:     f.sink,
		Clock:    f.clock,
		Logger:   discardLogger(),
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) units(n int64) *big.Int {
	return f.world.Price.Units(n)
}

func (f *fixture) balance(a common.Address) string {
	return f.world.Price.Balance(a).String()
}
