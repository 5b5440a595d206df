// Package simchain is an in-process stand-in for the token, exchange and
// NFT contracts the raffle talks to. It backs the simulate mode and the
// tests; state lives in memory and nothing is persisted.
package simchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// AddressOf derives a stable address from a label.
func AddressOf(label string) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte(label)))
}

// Token is an ERC20-style fungible token.
type Token struct {
	addr     common.Address
	symbol   string
	decimals uint8

	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	supply     *big.Int
}

// NewToken returns an empty token.
func NewToken(symbol string, decimals uint8) *Token {
	return &Token{
		addr:       AddressOf("token:" + symbol),
		symbol:     symbol,
		decimals:   decimals,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
		supply:     new(big.Int),
	}
}

func (t *Token) Address() common.Address { return t.addr }
func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) Decimals() uint8         { return t.decimals }

// Units returns n whole tokens in base units.
func (t *Token) Units(n int64) *big.Int {
	exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(t.decimals)), nil)
	return exp.Mul(exp, big.NewInt(n))
}

// Mint credits amount to `to` out of thin air.
func (t *Token) Mint(to common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balance(to).Add(t.balance(to), amount)
	t.supply.Add(t.supply, amount)
}

// Balance returns owner's balance.
func (t *Token) Balance(owner common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance(owner))
}

// BalanceOf implements the read side of domain.Currency.
func (t *Token) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	return t.Balance(owner), nil
}

// Approve sets spender's allowance over owner's balance.
func (t *Token) Approve(owner, spender common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]*big.Int)
	}
	t.allowances[owner][spender] = new(big.Int).Set(amount)
}

// Allowance returns spender's remaining allowance over owner's balance.
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.allowance(owner, spender))
}

// Transfer moves amount from `from` to `to`.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, amount)
}

// TransferFrom moves amount from `from` to `to` on behalf of spender. The
// allowance is checked before the balance.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	allowed := t.allowance(from, spender)
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%s: %s allows %s %s, need %s: %w",
			t.symbol, from.Hex(), spender.Hex(), allowed, amount, domain.ErrInsufficientAllowance)
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	allowed.Sub(allowed, amount)
	return nil
}

// Bind returns t as a domain.Currency acting for account.
func (t *Token) Bind(account common.Address) domain.Currency {
	return &boundToken{t: t, account: account}
}

func (t *Token) move(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("%s: negative amount %s: %w", t.symbol, amount, domain.ErrInvalidParameter)
	}
	bal := t.balance(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%s: %s holds %s, need %s: %w", t.symbol, from.Hex(), bal, amount, domain.ErrInsufficientFunds)
	}
	bal.Sub(bal, amount)
	t.balance(to).Add(t.balance(to), amount)
	return nil
}

func (t *Token) balance(a common.Address) *big.Int {
	b, ok := t.balances[a]
	if !ok {
		b = new(big.Int)
		t.balances[a] = b
	}
	return b
}

func (t *Token) allowance(owner, spender common.Address) *big.Int {
	m := t.allowances[owner]
	if m == nil {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	a, ok := m[spender]
	if !ok {
		a = new(big.Int)
		m[spender] = a
	}
	return a
}

type boundToken struct {
	t       *Token
	account common.Address
}

func (b *boundToken) Address() common.Address { return b.t.addr }

func (b *boundToken) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return b.t.BalanceOf(ctx, owner)
}

func (b *boundToken) TransferFrom(_ context.Context, from, to common.Address, amount *big.Int) error {
	return b.t.TransferFrom(b.account, from, to, amount)
}

func (b *boundToken) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	return b.t.Transfer(b.account, to, amount)
}
