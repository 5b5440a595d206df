// Package memory holds raffle state in process memory. It backs the
// simulate mode and the tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

type holdingKey struct {
	round uint64
	seq   int
}

// RaffleStore implements domain.RaffleStore.
type RaffleStore struct {
	mu       sync.Mutex
	params   *domain.Params
	rounds   map[uint64]domain.Round
	holdings map[holdingKey]domain.Holding
	rewards  map[uint64]domain.RewardRecord
	sales    map[uint64]domain.Sale
	saleSeq  uint64

	commitFault error
}

// NewRaffleStore returns an empty store.
func NewRaffleStore() *RaffleStore {
	return &RaffleStore{
		rounds:   make(map[uint64]domain.Round),
		holdings: make(map[holdingKey]domain.Holding),
		rewards:  make(map[uint64]domain.RewardRecord),
		sales:    make(map[uint64]domain.Sale),
	}
}

// SetCommitFault makes every following Commit fail with err until cleared
// with nil.
func (s *RaffleStore) SetCommitFault(err error) {
	s.mu.Lock()
	s.commitFault = err
	s.mu.Unlock()
}

func (s *RaffleStore) Load(_ context.Context) (domain.RaffleState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.params == nil {
		return domain.RaffleState{}, false, nil
	}

	st := domain.RaffleState{Params: s.params.Clone(), SaleSeq: s.saleSeq}
	for _, r := range s.rounds {
		st.Rounds = append(st.Rounds, r.Clone())
	}
	sort.Slice(st.Rounds, func(i, j int) bool { return st.Rounds[i].ID < st.Rounds[j].ID })
	for _, h := range s.holdings {
		st.Holdings = append(st.Holdings, h)
	}
	sort.Slice(st.Holdings, func(i, j int) bool {
		a, b := st.Holdings[i], st.Holdings[j]
		if a.RoundID != b.RoundID {
			return a.RoundID < b.RoundID
		}
		return a.Seq < b.Seq
	})
	for _, rw := range s.rewards {
		st.Rewards = append(st.Rewards, rw)
	}
	sort.Slice(st.Rewards, func(i, j int) bool { return st.Rewards[i].RoundID < st.Rewards[j].RoundID })
	return st, true, nil
}

func (s *RaffleStore) ListSales(_ context.Context, roundID uint64) ([]domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Sale
	for _, sale := range s.sales {
		if sale.RoundID == roundID {
			out = append(out, sale)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *RaffleStore) Begin(_ context.Context) (domain.RaffleTx, error) {
	return &raffleTx{s: s, settlements: make(map[uint64]domain.Settlement)}, nil
}

type raffleTx struct {
	s           *RaffleStore
	changes     []domain.Changeset
	settlements map[uint64]domain.Settlement
	done        bool
}

func (tx *raffleTx) Apply(_ context.Context, cs domain.Changeset) error {
	if tx.done {
		return fmt.Errorf("memory: apply on finished transaction")
	}
	tx.changes = append(tx.changes, cs)
	return nil
}

func (tx *raffleTx) RecordSettlement(_ context.Context, saleSeq uint64, st domain.Settlement) error {
	if tx.done {
		return fmt.Errorf("memory: record settlement on finished transaction")
	}
	for _, cs := range tx.changes {
		if cs.Sale != nil && cs.Sale.Seq == saleSeq {
			tx.settlements[saleSeq] = st
			return nil
		}
	}
	return fmt.Errorf("memory: sale %d not written in this transaction: %w", saleSeq, domain.ErrNotFound)
}

func (tx *raffleTx) Commit(_ context.Context) error {
	if tx.done {
		return fmt.Errorf("memory: commit on finished transaction")
	}
	tx.done = true

	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitFault != nil {
		return s.commitFault
	}
	for _, cs := range tx.changes {
		if cs.Sale != nil {
			if _, dup := s.sales[cs.Sale.Seq]; dup {
				return fmt.Errorf("memory: sale %d already stored", cs.Sale.Seq)
			}
		}
	}

	for _, cs := range tx.changes {
		if cs.Params != nil {
			p := cs.Params.Clone()
			s.params = &p
		}
		for _, r := range cs.Rounds {
			s.rounds[r.ID] = r.Clone()
		}
		for _, h := range cs.Holdings {
			s.holdings[holdingKey{round: h.RoundID, seq: h.Seq}] = h
		}
		if cs.Reward != nil {
			s.rewards[cs.Reward.RoundID] = *cs.Reward
		}
		if cs.Sale != nil {
			sale := *cs.Sale
			if st, ok := tx.settlements[sale.Seq]; ok {
				sale.Settlement = st
			}
			s.sales[sale.Seq] = sale
		}
		if cs.SaleSeq > s.saleSeq {
			s.saleSeq = cs.SaleSeq
		}
	}
	return nil
}

func (tx *raffleTx) Rollback(_ context.Context) error {
	tx.done = true
	tx.changes = nil
	return nil
}
