package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// memBlobs is an in-memory BlobWriter and BlobReader.
type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	m.puts++
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

func settledArchive() domain.RoundArchive {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	winner := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	return domain.RoundArchive{
		Round: domain.Round{
			ID: 1, TicketPrice: big.NewInt(1000), TicketsSold: 8, Capacity: 8,
			Status: domain.RoundStatusSettled, OpenedAt: at, SettledAt: &at,
		},
		Holdings: []domain.Holding{{RoundID: 1, Holder: winner, Tickets: 8}},
		Reward:   domain.RewardRecord{RoundID: 1, Winner: winner, TokenID: big.NewInt(1), IssuedAt: at},
		Sales: []domain.Sale{{
			Seq: 1, RoundID: 1, Buyer: winner, Tickets: 8, Gross: big.NewInt(8000), CreatedAt: at,
			Settlement: domain.Settlement{SwapAmountIn: big.NewInt(800), QuotedOut: big.NewInt(797), SwappedAmount: big.NewInt(797)},
		}},
	}
}

func TestRoundArchiver_WritesOnce(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	a := NewRoundArchiver(blobs, blobs, clockwork.NewFakeClock())

	path, err := a.ArchiveRound(ctx, settledArchive())
	require.NoError(t, err)
	assert.Equal(t, "rounds/1.json", path)

	_, err = a.ArchiveRound(ctx, settledArchive())
	require.NoError(t, err)
	assert.Equal(t, 1, blobs.puts)

	raw, err := a.Load(ctx, 1)
	require.NoError(t, err)
	var doc archiveDoc
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "1000", doc.TicketPrice)
	assert.Equal(t, "1", doc.RewardToken)
	require.Len(t, doc.Sales, 1)
	assert.Equal(t, "797", doc.Sales[0].SwappedAmount)
}

func TestRoundArchiver_RejectsActiveRound(t *testing.T) {
	ar := settledArchive()
	ar.Round.Status = domain.RoundStatusActive
	_, err := NewRoundArchiver(newMemBlobs(), nil, nil).ArchiveRound(context.Background(), ar)
	require.ErrorIs(t, err, domain.ErrRoundNotSettled)
}

func TestObjectKeyPrefix(t *testing.T) {
	c := &Client{prefix: "raffle/prod"}
	assert.Equal(t, "raffle/prod/rounds/1.json", c.objectKey("/rounds/1.json"))
	assert.Equal(t, "rounds/1.json", c.relativePath("raffle/prod/rounds/1.json"))
	assert.Equal(t, "rounds/1.json", (&Client{}).objectKey("rounds/1.json"))
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "http://x", normaliseEndpoint("http://x", true))
	assert.Len(t, s3Options(ClientConfig{Endpoint: "x", ForcePathStyle: true}), 2)
}
