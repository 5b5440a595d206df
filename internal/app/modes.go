package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/ticketraffle/internal/config"
	"github.com/alanyoungcy/ticketraffle/internal/crypto"
	"github.com/alanyoungcy/ticketraffle/internal/platform/evm"
	"github.com/alanyoungcy/ticketraffle/internal/platform/simchain"
	"github.com/alanyoungcy/ticketraffle/internal/raffle"
	"github.com/alanyoungcy/ticketraffle/internal/store/memory"
)

// liveChain holds the contract bindings used in live mode.
type liveChain struct {
	client  *evm.Client
	price   *evm.ERC20
	bridge  *raffle.Bridge
	tickets *evm.TicketContract
	rewards *evm.RewardContract
	entropy *evm.HeaderEntropy
}

// dialChain loads the operator key, connects to the RPC node and binds
// every configured contract. The operator wallet is the custody account.
func dialChain(ctx context.Context, cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (_ *liveChain, err error) {
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("wire: wallet: %w", err)
	}

	client, err := evm.Dial(ctx, evm.ClientConfig{
		RPCURL:         cfg.Chain.RPCURL,
		ChainID:        cfg.Chain.ChainID,
		Key:            key,
		GasMultiple:    cfg.Chain.GasMultiple,
		PollInterval:   cfg.Chain.PollInterval.Duration,
		ReceiptTimeout: cfg.Chain.ReceiptTimeout.Duration,
		Clock:          clock,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire: chain: %w", err)
	}
	defer func() {
		if err != nil {
			client.Close()
		}
	}()

	lc := &liveChain{client: client, entropy: evm.NewHeaderEntropy(client)}
	priceAddr := common.HexToAddress(cfg.Chain.PriceToken)
	if lc.price, err = evm.NewERC20(client, priceAddr); err != nil {
		return nil, fmt.Errorf("wire: price token: %w", err)
	}
	router, err := evm.NewUniswapV2Router(client, common.HexToAddress(cfg.Chain.Router), logger)
	if err != nil {
		return nil, fmt.Errorf("wire: router: %w", err)
	}
	if lc.tickets, err = evm.NewTicketContract(client, common.HexToAddress(cfg.Chain.TicketContract)); err != nil {
		return nil, fmt.Errorf("wire: ticket contract: %w", err)
	}
	if lc.rewards, err = evm.NewRewardContract(client, common.HexToAddress(cfg.Chain.RewardContract)); err != nil {
		return nil, fmt.Errorf("wire: reward contract: %w", err)
	}
	lc.bridge, err = raffle.NewBridge(raffle.BridgeConfig{
		Exchange: router,
		Source:   priceAddr,
		Target:   common.HexToAddress(cfg.Chain.SwapToken),
		Treasury: common.HexToAddress(cfg.Chain.Treasury),
		Deadline: cfg.Chain.SwapDeadline.Duration,
		Clock:    clock,
	})
	if err != nil {
		return nil, fmt.Errorf("wire: bridge: %w", err)
	}

	logger.InfoContext(ctx, "chain connected",
		slog.String("rpc", cfg.Chain.RPCURL),
		slog.String("custody", client.From().Hex()),
	)
	return lc, nil
}

// wireSimulate builds an in-process chain with funded demo accounts and
// in-memory stores.
func wireSimulate(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger, deps *Dependencies) error {
	w := simchain.NewWorld(clock)

	bridge, err := raffle.NewBridge(raffle.BridgeConfig{
		Exchange: w.Exchange(),
		Source:   w.Price.Address(),
		Target:   w.Swap.Address(),
		Treasury: w.Treasury,
		Deadline: cfg.Chain.SwapDeadline.Duration,
		Clock:    clock,
	})
	if err != nil {
		return fmt.Errorf("wire: bridge: %w", err)
	}

	admin := simAddress("admin")
	if cfg.Raffle.Admin != "" {
		admin = common.HexToAddress(cfg.Raffle.Admin)
	} else {
		logger.Warn("raffle.admin not set: admin endpoints are unreachable", slog.String("admin", admin.Hex()))
	}

	funding := w.Price.Units(cfg.Simulate.Funding)
	for _, acct := range cfg.Simulate.Accounts {
		acct = strings.TrimSpace(acct)
		if acct == "" {
			continue
		}
		holder := parseAccount(acct)
		w.Fund(holder, funding)
		logger.Info("simulated account funded",
			slog.String("account", acct),
			slog.String("address", holder.Hex()),
			slog.String("amount", funding.String()),
		)
	}

	deps.Admin = admin
	deps.Custody = w.Custody
	deps.Currency = w.Currency()
	deps.Bridge = bridge
	deps.Tickets = w.Tickets
	deps.Rewards = w.Rewards
	deps.Entropy = raffle.NewChainedEntropy(clock, []byte(cfg.Simulate.Seed))
	deps.Store = memory.NewRaffleStore()
	deps.Audit = memory.NewAuditStore(clock)
	return nil
}

// simAddress maps a demo account label to its simulated address.
func simAddress(label string) common.Address {
	return simchain.AddressOf("account:" + label)
}
