package evm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// receiptNode answers eth_getTransactionReceipt with null until pending
// polls have been served, then with a successful receipt.
func receiptNode(t *testing.T, pending int32, onPoll func()) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result := "null"
		if req.Method == "eth_getTransactionReceipt" {
			n := polls.Add(1)
			if onPoll != nil {
				onPoll()
			}
			if n > pending {
				result = `{
					"status": "0x1",
					"cumulativeGasUsed": "0x5208",
					"gasUsed": "0x5208",
					"logsBloom": "0x` + strings.Repeat("0", 512) + `",
					"logs": [],
					"transactionHash": "0x` + strings.Repeat("0", 63) + `1",
					"blockHash": "0x` + strings.Repeat("0", 63) + `2",
					"blockNumber": "0x10",
					"transactionIndex": "0x0",
					"contractAddress": null,
					"effectiveGasPrice": "0x1",
					"type": "0x0"
				}`
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &polls
}

func newTestClient(t *testing.T, url string, wait time.Duration) *Client {
	t.Helper()
	eth, err := ethclient.Dial(url)
	require.NoError(t, err)
	t.Cleanup(eth.Close)
	return &Client{
		eth:    eth,
		poll:   time.Millisecond,
		wait:   wait,
		clock:  clockwork.NewRealClock(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestWaitMined_IgnoresCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv, polls := receiptNode(t, 3, cancel)
	c := newTestClient(t, srv.URL, time.Minute)

	receipt, err := c.waitMined(ctx, common.HexToHash("0x01"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.Status)
	assert.Equal(t, int32(4), polls.Load())
}

func TestWaitMined_ReceiptTimeout(t *testing.T) {
	srv, _ := receiptNode(t, 1<<30, nil)
	c := newTestClient(t, srv.URL, 20*time.Millisecond)

	_, err := c.waitMined(context.Background(), common.HexToHash("0x01"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
