package raffle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// state is the committed view of every round. Round IDs are contiguous
// from 1, so rounds[i] holds round i+1 and the last entry is the active one.
type state struct {
	rounds   []domain.Round
	holdings map[uint64][]domain.Holding
	rewards  map[uint64]domain.RewardRecord
	saleSeq  uint64
}

func newState() *state {
	return &state{
		holdings: make(map[uint64][]domain.Holding),
		rewards:  make(map[uint64]domain.RewardRecord),
	}
}

// stateFrom rebuilds state from a stored snapshot and checks the round
// invariants along the way.
func stateFrom(rs domain.RaffleState) (*state, error) {
	st := newState()
	st.saleSeq = rs.SaleSeq
	for i, r := range rs.Rounds {
		if r.ID != uint64(i+1) {
			return nil, fmt.Errorf("raffle: stored round %d at position %d", r.ID, i)
		}
		last := i == len(rs.Rounds)-1
		if last == r.Settled() {
			return nil, fmt.Errorf("raffle: stored round %d has status %s", r.ID, r.Status)
		}
		st.rounds = append(st.rounds, r.Clone())
	}
	if len(st.rounds) == 0 {
		return nil, fmt.Errorf("raffle: stored state has no rounds")
	}
	for _, h := range rs.Holdings {
		st.holdings[h.RoundID] = append(st.holdings[h.RoundID], h)
	}
	for _, rw := range rs.Rewards {
		st.rewards[rw.RoundID] = rw
	}
	for _, r := range st.rounds {
		var sum uint64
		for _, h := range st.holdings[r.ID] {
			sum += h.Tickets
		}
		if sum != r.TicketsSold {
			return nil, fmt.Errorf("raffle: round %d holdings sum to %d, sold %d", r.ID, sum, r.TicketsSold)
		}
		_, hasReward := st.rewards[r.ID]
		if r.Settled() != hasReward {
			return nil, fmt.Errorf("raffle: round %d settled=%t reward=%t", r.ID, r.Settled(), hasReward)
		}
	}
	return st, nil
}

func (s *state) active() domain.Round {
	return s.rounds[len(s.rounds)-1].Clone()
}

func (s *state) round(id uint64) (domain.Round, bool) {
	if id == 0 || id > uint64(len(s.rounds)) {
		return domain.Round{}, false
	}
	return s.rounds[id-1].Clone(), true
}

func (s *state) holdingsOf(roundID uint64) []domain.Holding {
	hs := s.holdings[roundID]
	out := make([]domain.Holding, len(hs))
	copy(out, hs)
	return out
}

func (s *state) ticketsOf(roundID uint64, holder common.Address) uint64 {
	for _, h := range s.holdings[roundID] {
		if h.Holder == holder {
			return h.Tickets
		}
	}
	return 0
}

// apply folds a committed changeset into the state.
func (s *state) apply(cs domain.Changeset) {
	for _, r := range cs.Rounds {
		switch {
		case r.ID <= uint64(len(s.rounds)):
			s.rounds[r.ID-1] = r.Clone()
		case r.ID == uint64(len(s.rounds))+1:
			s.rounds = append(s.rounds, r.Clone())
		}
	}
	for _, h := range cs.Holdings {
		hs := s.holdings[h.RoundID]
		if h.Seq < len(hs) {
			hs[h.Seq] = h
		} else {
			hs = append(hs, h)
		}
		s.holdings[h.RoundID] = hs
	}
	if cs.Reward != nil {
		s.rewards[cs.Reward.RoundID] = *cs.Reward
	}
	if cs.SaleSeq > s.saleSeq {
		s.saleSeq = cs.SaleSeq
	}
}
