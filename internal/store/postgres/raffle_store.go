package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// RaffleStore implements domain.RaffleStore using PostgreSQL.
type RaffleStore struct {
	pool *pgxpool.Pool
}

// NewRaffleStore creates a RaffleStore backed by the given pool.
func NewRaffleStore(pool *pgxpool.Pool) *RaffleStore {
	return &RaffleStore{pool: pool}
}

// Load reads a consistent snapshot of every table.
func (s *RaffleStore) Load(ctx context.Context) (domain.RaffleState, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return domain.RaffleState{}, false, fmt.Errorf("postgres: begin load: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var (
		st    domain.RaffleState
		price string
		pct   int16
		maxN  int64
		capN  int64
		seq   int64
	)
	err = tx.QueryRow(ctx, `
		SELECT ticket_price::text, swap_percent, max_per_purchase, capacity, sale_seq
		FROM raffle_params WHERE id = 1`,
	).Scan(&price, &pct, &maxN, &capN, &seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RaffleState{}, false, nil
	}
	if err != nil {
		return domain.RaffleState{}, false, fmt.Errorf("postgres: load params: %w", err)
	}
	if st.Params.TicketPrice, err = parseNumeric(price); err != nil {
		return domain.RaffleState{}, false, err
	}
	st.Params.SwapPercent = uint8(pct)
	st.Params.MaxPerPurchase = uint64(maxN)
	st.Params.Capacity = uint64(capN)
	st.SaleSeq = uint64(seq)

	if st.Rounds, err = loadRounds(ctx, tx); err != nil {
		return domain.RaffleState{}, false, err
	}
	if st.Holdings, err = loadHoldings(ctx, tx); err != nil {
		return domain.RaffleState{}, false, err
	}
	if st.Rewards, err = loadRewards(ctx, tx); err != nil {
		return domain.RaffleState{}, false, err
	}
	return st, true, nil
}

func loadRounds(ctx context.Context, tx pgx.Tx) ([]domain.Round, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, ticket_price::text, tickets_sold, capacity, status, opened_at, settled_at
		FROM rounds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load rounds: %w", err)
	}
	rounds, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Round, error) {
		var (
			r         domain.Round
			id, sold  int64
			capN      int64
			price     string
			status    string
			settledAt *time.Time
		)
		if err := row.Scan(&id, &price, &sold, &capN, &status, &r.OpenedAt, &settledAt); err != nil {
			return r, err
		}
		p, err := parseNumeric(price)
		if err != nil {
			return r, err
		}
		r.ID, r.TicketPrice, r.TicketsSold, r.Capacity = uint64(id), p, uint64(sold), uint64(capN)
		r.Status = domain.RoundStatus(status)
		r.SettledAt = settledAt
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan rounds: %w", err)
	}
	return rounds, nil
}

func loadHoldings(ctx context.Context, tx pgx.Tx) ([]domain.Holding, error) {
	rows, err := tx.Query(ctx, `
		SELECT round_id, holder, tickets, seq FROM holdings ORDER BY round_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load holdings: %w", err)
	}
	hs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Holding, error) {
		var (
			h              domain.Holding
			roundID, count int64
			holder         string
			seq            int32
		)
		if err := row.Scan(&roundID, &holder, &count, &seq); err != nil {
			return h, err
		}
		h.RoundID, h.Holder, h.Tickets, h.Seq = uint64(roundID), common.HexToAddress(holder), uint64(count), int(seq)
		return h, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan holdings: %w", err)
	}
	return hs, nil
}

func loadRewards(ctx context.Context, tx pgx.Tx) ([]domain.RewardRecord, error) {
	rows, err := tx.Query(ctx, `
		SELECT round_id, winner, token_id::text, issued_at FROM rewards ORDER BY round_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load rewards: %w", err)
	}
	rws, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.RewardRecord, error) {
		var (
			rw      domain.RewardRecord
			roundID int64
			winner  string
			tokenID string
		)
		if err := row.Scan(&roundID, &winner, &tokenID, &rw.IssuedAt); err != nil {
			return rw, err
		}
		id, err := parseNumeric(tokenID)
		if err != nil {
			return rw, err
		}
		rw.RoundID, rw.Winner, rw.TokenID = uint64(roundID), common.HexToAddress(winner), id
		return rw, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan rewards: %w", err)
	}
	return rws, nil
}

// ListSales returns a round's committed sales in sequence order.
func (s *RaffleStore) ListSales(ctx context.Context, roundID uint64) ([]domain.Sale, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, round_id, buyer, tickets, gross::text,
		       COALESCE(swap_amount_in, 0)::text, COALESCE(quoted_out, 0)::text,
		       COALESCE(swapped_amount, 0)::text, COALESCE(treasury, ''), created_at
		FROM sales WHERE round_id = $1 ORDER BY seq`, int64(roundID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list sales: %w", err)
	}
	sales, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Sale, error) {
		var (
			sale                     domain.Sale
			seq, rid, tickets        int64
			buyer, treasury          string
			gross, in, quoted, swapd string
		)
		if err := row.Scan(&seq, &rid, &buyer, &tickets, &gross, &in, &quoted, &swapd, &treasury, &sale.CreatedAt); err != nil {
			return sale, err
		}
		sale.Seq, sale.RoundID, sale.Buyer, sale.Tickets = uint64(seq), uint64(rid), common.HexToAddress(buyer), uint64(tickets)
		var err error
		if sale.Gross, err = parseNumeric(gross); err != nil {
			return sale, err
		}
		if sale.Settlement.SwapAmountIn, err = parseNumeric(in); err != nil {
			return sale, err
		}
		if sale.Settlement.QuotedOut, err = parseNumeric(quoted); err != nil {
			return sale, err
		}
		if sale.Settlement.SwappedAmount, err = parseNumeric(swapd); err != nil {
			return sale, err
		}
		if treasury != "" {
			sale.Settlement.Treasury = common.HexToAddress(treasury)
		}
		return sale, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan sales: %w", err)
	}
	return sales, nil
}

// Begin opens a write transaction.
func (s *RaffleStore) Begin(ctx context.Context) (domain.RaffleTx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &raffleTx{tx: tx}, nil
}

type raffleTx struct {
	tx pgx.Tx
}

// Apply queues every row of cs in one batch.
func (t *raffleTx) Apply(ctx context.Context, cs domain.Changeset) error {
	b := &pgx.Batch{}

	if p := cs.Params; p != nil {
		b.Queue(`
			INSERT INTO raffle_params (id, ticket_price, swap_percent, max_per_purchase, capacity, updated_at)
			VALUES (1, $1::numeric, $2, $3, $4, NOW())
			ON CONFLICT (id) DO UPDATE SET
				ticket_price = EXCLUDED.ticket_price,
				swap_percent = EXCLUDED.swap_percent,
				max_per_purchase = EXCLUDED.max_per_purchase,
				capacity = EXCLUDED.capacity,
				updated_at = NOW()`,
			p.TicketPrice.String(), int16(p.SwapPercent), int64(p.MaxPerPurchase), int64(p.Capacity))
	}
	for _, r := range cs.Rounds {
		b.Queue(`
			INSERT INTO rounds (id, ticket_price, tickets_sold, capacity, status, opened_at, settled_at)
			VALUES ($1, $2::numeric, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				tickets_sold = EXCLUDED.tickets_sold,
				status = EXCLUDED.status,
				settled_at = EXCLUDED.settled_at`,
			int64(r.ID), r.TicketPrice.String(), int64(r.TicketsSold), int64(r.Capacity),
			string(r.Status), r.OpenedAt, r.SettledAt)
	}
	for _, h := range cs.Holdings {
		b.Queue(`
			INSERT INTO holdings (round_id, holder, tickets, seq)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (round_id, holder) DO UPDATE SET tickets = EXCLUDED.tickets`,
			int64(h.RoundID), h.Holder.Hex(), int64(h.Tickets), int32(h.Seq))
	}
	if rw := cs.Reward; rw != nil {
		b.Queue(`
			INSERT INTO rewards (round_id, winner, token_id, issued_at)
			VALUES ($1, $2, $3::numeric, $4)`,
			int64(rw.RoundID), rw.Winner.Hex(), rw.TokenID.String(), rw.IssuedAt)
	}
	if sale := cs.Sale; sale != nil {
		b.Queue(`
			INSERT INTO sales (seq, round_id, buyer, tickets, gross, created_at)
			VALUES ($1, $2, $3, $4, $5::numeric, $6)`,
			int64(sale.Seq), int64(sale.RoundID), sale.Buyer.Hex(), int64(sale.Tickets),
			sale.Gross.String(), sale.CreatedAt)
	}
	if cs.SaleSeq > 0 {
		b.Queue(`UPDATE raffle_params SET sale_seq = GREATEST(sale_seq, $1) WHERE id = 1`, int64(cs.SaleSeq))
	}
	if b.Len() == 0 {
		return nil
	}

	if err := t.tx.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("postgres: apply changeset: %w", err)
	}
	return nil
}

func (t *raffleTx) RecordSettlement(ctx context.Context, saleSeq uint64, st domain.Settlement) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sales SET
			swap_amount_in = $2::numeric,
			quoted_out = $3::numeric,
			swapped_amount = $4::numeric,
			treasury = $5
		WHERE seq = $1`,
		int64(saleSeq), numericString(st.SwapAmountIn), numericString(st.QuotedOut),
		numericString(st.SwappedAmount), st.Treasury.Hex())
	if err != nil {
		return fmt.Errorf("postgres: record settlement %d: %w", saleSeq, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("postgres: sale %d: %w", saleSeq, domain.ErrNotFound)
	}
	return nil
}

func (t *raffleTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (t *raffleTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: bad numeric %q", s)
	}
	return v, nil
}

func numericString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
