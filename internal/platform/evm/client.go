// Package evm implements the raffle's token, exchange and NFT capabilities
// against contracts on an EVM chain.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// ErrReverted is returned when a mined transaction has a failed status.
var ErrReverted = errors.New("evm: transaction reverted")

// ClientConfig holds the RPC endpoint and signing key.
type ClientConfig struct {
	RPCURL       string
	ChainID      int64 // zero means ask the node
	Key          *ecdsa.PrivateKey
	GasMultiple  float64
	PollInterval time.Duration
	// ReceiptTimeout bounds the wait for a sent transaction to be mined.
	ReceiptTimeout time.Duration
	Clock          clockwork.Clock
	Logger         *slog.Logger
}

// Client signs and submits transactions from a single hot-wallet account.
type Client struct {
	eth     *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	gasMul  float64
	poll    time.Duration
	wait    time.Duration
	clock   clockwork.Clock
	logger  *slog.Logger

	// One transaction in flight at a time keeps nonces gap-free.
	txMu sync.Mutex
}

// Dial connects to cfg.RPCURL.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Key == nil {
		return nil, fmt.Errorf("evm: signing key is required")
	}
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", cfg.RPCURL, err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		if chainID, err = eth.ChainID(ctx); err != nil {
			eth.Close()
			return nil, fmt.Errorf("evm: chain id: %w", err)
		}
	}
	if cfg.GasMultiple < 1 {
		cfg.GasMultiple = 1.2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Client{
		eth:     eth,
		key:     cfg.Key,
		from:    ethcrypto.PubkeyToAddress(cfg.Key.PublicKey),
		chainID: chainID,
		gasMul:  cfg.GasMultiple,
		poll:    cfg.PollInterval,
		wait:    cfg.ReceiptTimeout,
		clock:   cfg.Clock,
		logger:  cfg.Logger.With(slog.String("component", "evm")),
	}
	c.logger.InfoContext(ctx, "connected",
		slog.String("from", c.from.Hex()),
		slog.String("chain_id", chainID.String()),
	)
	return c, nil
}

// From returns the account that signs every transaction.
func (c *Client) From() common.Address {
	return c.from
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Ping checks that the node answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.eth.BlockNumber(ctx)
	return err
}

// Call runs a read-only call against the latest block.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, classifyRevert(err)
	}
	return out, nil
}

// LatestHeader returns the head block header.
func (c *Client) LatestHeader(ctx context.Context) (*types.Header, error) {
	h, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("evm: latest header: %w", err)
	}
	return h, nil
}

// Transact signs, submits and waits for a transaction calling `to` with data.
// Reverts detected during gas estimation are mapped onto the domain errors.
func (c *Client) Transact(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	c.txMu.Lock()
	defer c.txMu.Unlock()

	msg := ethereum.CallMsg{From: c.from, To: &to, Data: data}
	gas, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		return nil, classifyRevert(err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("evm: gas price: %w", err)
	}
	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("evm: nonce: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      uint64(float64(gas) * c.gasMul),
		To:       &to,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("evm: sign: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("evm: send: %w", classifyRevert(err))
	}

	c.logger.DebugContext(ctx, "transaction sent",
		slog.String("hash", signed.Hash().Hex()),
		slog.String("to", to.Hex()),
		slog.Uint64("nonce", nonce),
	)
	return c.waitMined(ctx, signed.Hash())
}

// waitMined polls for the receipt of a transaction that has already been
// sent. Caller cancellation no longer applies at this point; only the
// client's receipt timeout ends the wait.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.wait)
	defer cancel()
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("evm: %s: %w", hash.Hex(), ErrReverted)
			}
			return receipt, nil
		case !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("evm: receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("evm: waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-c.clock.After(c.poll):
		}
	}
}

// classifyRevert maps well-known revert reasons onto domain errors.
func classifyRevert(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient allowance"):
		return fmt.Errorf("evm: %w: %w", domain.ErrInsufficientAllowance, err)
	case strings.Contains(msg, "transfer amount exceeds balance"),
		strings.Contains(msg, "insufficient balance"):
		return fmt.Errorf("evm: %w: %w", domain.ErrInsufficientFunds, err)
	case strings.Contains(msg, "execution reverted"):
		return fmt.Errorf("evm: %w: %w", ErrReverted, err)
	}
	return fmt.Errorf("evm: %w", err)
}
