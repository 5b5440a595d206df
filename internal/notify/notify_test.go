package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

type captureSender struct {
	name   string
	err    error
	titles []string
}

func (c *captureSender) Send(_ context.Context, title, _ string) error {
	c.titles = append(c.titles, title)
	return c.err
}

func (c *captureSender) Name() string { return c.name }

func TestNotifier_FiltersKinds(t *testing.T) {
	s := &captureSender{name: "cap"}
	n := NewNotifier([]Sender{s}, []string{" winner_for_lottery "}, nil)

	winner := common.HexToAddress("0xb2")
	err := n.Publish(context.Background(), []domain.Event{
		{Kind: domain.EventTicketSale, RoundID: 1},
		{Kind: domain.EventWinner, RoundID: 1, Winner: &winner},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Round 1 winner"}, s.titles)
}

func TestNotifier_KeepsGoingAfterFailure(t *testing.T) {
	bad := &captureSender{name: "bad", err: errors.New("down")}
	good := &captureSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, nil)

	err := n.NotifyAll(context.Background(), "hello", "world")
	require.ErrorContains(t, err, "bad: down")
	assert.Len(t, good.titles, 1)
}

func TestFormat_NilFields(t *testing.T) {
	title, msg := Format(domain.Event{Kind: domain.EventWinner, RoundID: 3})
	assert.Equal(t, "Round 3 winner", title)
	assert.Contains(t, msg, "unknown")

	_, msg = Format(domain.Event{Kind: domain.EventSwapped})
	assert.Contains(t, msg, "Swapped 0 into 0")
}

func TestSenders_PostJSON(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewTelegramSender("tok", "42").WithAPIBase(srv.URL+"/").Send(context.Background(), "T", "M"))
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*T*\nM", got["text"])

	require.NoError(t, NewDiscordSender(srv.URL+"/hook").Send(context.Background(), "T", "M"))
	assert.Equal(t, "**T**\nM", got["content"])
}

func TestSenders_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "T", "M")
	require.ErrorContains(t, err, "unexpected status 400")
}
