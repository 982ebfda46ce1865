package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chamber/internal/errors"
	"chamber/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(Config{
		RPCURL:      url,
		PollTimeout: 2 * time.Second,
		BatchLimit:  100,
	})
}

func TestPoll_ReturnsEventsAndCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req pollRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "marketplace_getEvents", req.Method)
		assert.Equal(t, "10", req.Params.Cursor)
		assert.Equal(t, 100, req.Params.Limit)

		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]any{
				"events": []models.LedgerEvent{
					{Kind: models.KindFundsDeposited, EventAddress: "0xevent", Account: "0xalice", Amount: 100, BlockNumber: 11, LogIndex: 0},
				},
				"cursor": "11",
			},
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	events, cursor, err := client.Poll(context.Background(), "10")
	require.NoError(t, err)
	assert.Equal(t, "11", cursor)
	require.Len(t, events, 1)
	assert.Equal(t, models.KindFundsDeposited, events[0].Kind)
	assert.Equal(t, uint64(11), events[0].BlockNumber)
}

func TestPoll_EmptyWindowKeepsCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  map[string]any{"events": []models.LedgerEvent{}, "cursor": ""},
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	events, cursor, err := client.Poll(context.Background(), "42")
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, "42", cursor)
}

func TestPoll_FailuresPreserveCursor(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "rpc error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{
					"jsonrpc": "2.0",
					"id":      1,
					"error":   map[string]any{"code": -32602, "message": "invalid cursor"},
				})
			},
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
		{
			name: "missing result",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1})
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			client := newTestClient(srv.URL)
			events, cursor, err := client.Poll(context.Background(), "7")
			assert.ErrorIs(t, err, errors.ErrLedgerUnavailable)
			assert.Nil(t, events)
			assert.Equal(t, "7", cursor)
		})
	}
}

func TestPoll_ConnectionRefused(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")
	_, cursor, err := client.Poll(context.Background(), "3")
	assert.ErrorIs(t, err, errors.ErrLedgerUnavailable)
	assert.Equal(t, "3", cursor)
}
