package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

func TestIsSubscribed(t *testing.T) {
	c := &client{subs: map[string]bool{"raffle:*": true}}
	assert.True(t, c.isSubscribed(ChannelFor(domain.EventWinner)))

	c = &client{subs: map[string]bool{ChannelFor(domain.EventWinner): true}}
	assert.True(t, c.isSubscribed("raffle:winner_for_lottery"))
	assert.False(t, c.isSubscribed("raffle:ticket_sale"))
}

func TestHub_StreamsToClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, nil, Config{Mode: "simulate", Status: func() any { return map[string]int{"round": 1} }})
	go hub.Run(ctx) //nolint:errcheck

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var status map[string]any
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &status))
	assert.Equal(t, "status", status["kind"])

	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Broadcast(domain.EventWinner, []byte(`{"kind":"winner_for_lottery","round_id":1}`))

	_, raw, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"winner_for_lottery","round_id":1}`, string(raw))
}
