package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// RaffleState is everything the raffle needs to resume after a restart.
type RaffleState struct {
	Params   Params
	Rounds   []Round   // ascending by ID
	Holdings []Holding // ordered by round, then Seq
	Rewards  []RewardRecord
	SaleSeq  uint64
}

// Changeset is the set of rows one operation writes. Rounds and Holdings
// carry final values, not deltas.
type Changeset struct {
	Params   *Params
	Rounds   []Round
	Holdings []Holding
	Reward   *RewardRecord
	Sale     *Sale
	SaleSeq  uint64
}

// Empty reports whether cs writes nothing.
func (cs Changeset) Empty() bool {
	return cs.Params == nil && len(cs.Rounds) == 0 && len(cs.Holdings) == 0 &&
		cs.Reward == nil && cs.Sale == nil
}

// RaffleTx is an open store transaction. Nothing written through it is
// visible to Load until Commit returns nil.
type RaffleTx interface {
	Apply(ctx context.Context, cs Changeset) error
	// RecordSettlement fills in the settlement columns of a sale written
	// earlier in the same transaction.
	RecordSettlement(ctx context.Context, saleSeq uint64, s Settlement) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// RaffleStore persists raffle state.
type RaffleStore interface {
	// Load returns the stored state; ok is false when nothing has been
	// stored yet.
	Load(ctx context.Context) (state RaffleState, ok bool, err error)
	Begin(ctx context.Context) (RaffleTx, error)
	ListSales(ctx context.Context, roundID uint64) ([]Sale, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
