package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// multipartThreshold is the document size above which archives are
// uploaded in parts.
const multipartThreshold = 8 * 1024 * 1024

// RoundArchiver writes one JSON document per settled round under rounds/.
type RoundArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	clock  clockwork.Clock
}

// NewRoundArchiver returns an archiver writing through w. reader may be nil,
// in which case Load is unavailable and rounds are always rewritten.
func NewRoundArchiver(w domain.BlobWriter, reader domain.BlobReader, clock clockwork.Clock) *RoundArchiver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RoundArchiver{writer: w, reader: reader, clock: clock}
}

// RoundPath is the object path of a round's archive.
func RoundPath(roundID uint64) string {
	return fmt.Sprintf("rounds/%d.json", roundID)
}

type archiveDoc struct {
	RoundID     uint64         `json:"round_id"`
	TicketPrice string         `json:"ticket_price"`
	Capacity    uint64         `json:"capacity"`
	TicketsSold uint64         `json:"tickets_sold"`
	OpenedAt    time.Time      `json:"opened_at"`
	SettledAt   *time.Time     `json:"settled_at,omitempty"`
	Winner      string         `json:"winner"`
	RewardToken string         `json:"reward_token"`
	Holdings    []holdingDoc   `json:"holdings"`
	Sales       []saleDoc      `json:"sales"`
	ArchivedAt  time.Time      `json:"archived_at"`
	Meta        map[string]any `json:"meta,omitempty"`
}

type holdingDoc struct {
	Holder  string `json:"holder"`
	Tickets uint64 `json:"tickets"`
	Seq     int    `json:"seq"`
}

type saleDoc struct {
	Seq           uint64    `json:"seq"`
	Buyer         string    `json:"buyer"`
	Tickets       uint64    `json:"tickets"`
	Gross         string    `json:"gross"`
	SwapAmountIn  string    `json:"swap_amount_in"`
	QuotedOut     string    `json:"quoted_out"`
	SwappedAmount string    `json:"swapped_amount"`
	CreatedAt     time.Time `json:"created_at"`
}

// ArchiveRound writes a settled round and returns its object path. An
// already archived round is left untouched.
func (a *RoundArchiver) ArchiveRound(ctx context.Context, ar domain.RoundArchive) (string, error) {
	if !ar.Round.Settled() {
		return "", fmt.Errorf("s3blob: archive round %d: %w", ar.Round.ID, domain.ErrRoundNotSettled)
	}
	path := RoundPath(ar.Round.ID)
	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return "", err
		}
		if exists {
			return path, nil
		}
	}

	doc := archiveDoc{
		RoundID:     ar.Round.ID,
		TicketPrice: bigString(ar.Round.TicketPrice),
		Capacity:    ar.Round.Capacity,
		TicketsSold: ar.Round.TicketsSold,
		OpenedAt:    ar.Round.OpenedAt,
		SettledAt:   ar.Round.SettledAt,
		Winner:      ar.Reward.Winner.Hex(),
		RewardToken: bigString(ar.Reward.TokenID),
		ArchivedAt:  a.clock.Now().UTC(),
	}
	for _, h := range ar.Holdings {
		doc.Holdings = append(doc.Holdings, holdingDoc{Holder: h.Holder.Hex(), Tickets: h.Tickets, Seq: h.Seq})
	}
	for _, s := range ar.Sales {
		doc.Sales = append(doc.Sales, saleDoc{
			Seq:           s.Seq,
			Buyer:         s.Buyer.Hex(),
			Tickets:       s.Tickets,
			Gross:         bigString(s.Gross),
			SwapAmountIn:  bigString(s.Settlement.SwapAmountIn),
			QuotedOut:     bigString(s.Settlement.QuotedOut),
			SwappedAmount: bigString(s.Settlement.SwappedAmount),
			CreatedAt:     s.CreatedAt,
		})
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal round %d: %w", ar.Round.ID, err)
	}
	if len(body) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(body), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(body), "application/json")
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

// Load returns the stored archive document of a round as raw JSON.
func (a *RoundArchiver) Load(ctx context.Context, roundID uint64) ([]byte, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: archiver has no reader: %w", domain.ErrNotFound)
	}
	rc, err := a.reader.Get(ctx, RoundPath(roundID))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, fmt.Errorf("s3blob: read round %d: %w", roundID, err)
	}
	return buf.Bytes(), nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

var _ domain.Archiver = (*RoundArchiver)(nil)
