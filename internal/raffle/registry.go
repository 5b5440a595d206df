package raffle

import (
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// Registry holds the current Params snapshot behind an AdminGate. Setters
// validate and return the proposed snapshot; the Manager installs it only
// after the change has been persisted.
type Registry struct {
	gate    *AdminGate
	current atomic.Pointer[domain.Params]
}

// NewRegistry returns a Registry seeded with initial.
func NewRegistry(gate *AdminGate, initial domain.Params) (*Registry, error) {
	if gate == nil {
		return nil, fmt.Errorf("raffle: registry needs an admin gate: %w", domain.ErrInvalidParameter)
	}
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("raffle: initial params: %w", err)
	}
	r := &Registry{gate: gate}
	p := initial.Clone()
	r.current.Store(&p)
	return r, nil
}

// Snapshot returns a copy of the latest committed params.
func (r *Registry) Snapshot() domain.Params {
	return r.current.Load().Clone()
}

// Admin returns the controller address.
func (r *Registry) Admin() common.Address {
	return r.gate.Admin()
}

// SetMaxPerPurchase proposes a new per-purchase ticket limit.
func (r *Registry) SetMaxPerPurchase(caller common.Address, n uint64) (domain.Params, error) {
	if err := r.gate.Require(caller); err != nil {
		return domain.Params{}, err
	}
	if n == 0 {
		return domain.Params{}, fmt.Errorf("raffle: max per purchase must be at least 1: %w", domain.ErrInvalidParameter)
	}
	return r.Snapshot().WithMaxPerPurchase(n), nil
}

// SetSwapPercent proposes a new swap percentage in [0, 100].
func (r *Registry) SetSwapPercent(caller common.Address, pct uint64) (domain.Params, error) {
	if err := r.gate.Require(caller); err != nil {
		return domain.Params{}, err
	}
	if pct > domain.MaxSwapPercent {
		return domain.Params{}, fmt.Errorf("raffle: swap percent %d above %d: %w", pct, domain.MaxSwapPercent, domain.ErrInvalidParameter)
	}
	return r.Snapshot().WithSwapPercent(uint8(pct)), nil
}

func (r *Registry) install(p domain.Params) {
	c := p.Clone()
	r.current.Store(&c)
}
