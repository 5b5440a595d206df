package raffle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// AdminGate restricts configuration changes to a single controller address.
type AdminGate struct {
	admin common.Address
}

// NewAdminGate returns a gate controlled by admin. The zero address is
// rejected because nobody could ever pass the gate.
func NewAdminGate(admin common.Address) (*AdminGate, error) {
	if admin == (common.Address{}) {
		return nil, fmt.Errorf("raffle: admin address is zero: %w", domain.ErrInvalidParameter)
	}
	return &AdminGate{admin: admin}, nil
}

// Admin returns the controller address.
func (g *AdminGate) Admin() common.Address {
	return g.admin
}

// Require returns ErrUnauthorized unless caller is the controller.
func (g *AdminGate) Require(caller common.Address) error {
	if caller != g.admin {
		return fmt.Errorf("raffle: %s: %w", caller.Hex(), domain.ErrUnauthorized)
	}
	return nil
}
