package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chamber/internal/errors"
	"chamber/internal/models"
)

// Client reads marketplace facts from the chain indexer RPC. Read-only;
// transaction submission goes through the wallet bridge.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	batchLimit int
}

type Config struct {
	RPCURL       string
	PollInterval time.Duration
	PollTimeout  time.Duration
	BatchLimit   int
	MaxBackoff   time.Duration
}

type pollParams struct {
	Cursor string `json:"cursor"`
	Limit  int    `json:"limit"`
}

type pollRequest struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      int        `json:"id"`
	Method  string     `json:"method"`
	Params  pollParams `json:"params"`
}

type pollResult struct {
	Events []models.LedgerEvent `json:"events"`
	Cursor string               `json:"cursor"`
}

type pollResponse struct {
	Result *pollResult `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewClient(cfg Config) *Client {
	limit := cfg.BatchLimit
	if limit <= 0 {
		limit = 500
	}

	return &Client{
		rpcURL: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: cfg.PollTimeout,
		},
		batchLimit: limit,
	}
}

// Poll fetches the ordered ledger events after cursor. Safe to call
// repeatedly with the same cursor: the indexer replays the identical
// window. Every transport or RPC failure is reported as
// ErrLedgerUnavailable so callers retry without advancing the cursor.
func (c *Client) Poll(ctx context.Context, cursor string) ([]models.LedgerEvent, string, error) {
	reqBody, err := json.Marshal(pollRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "marketplace_getEvents",
		Params:  pollParams{Cursor: cursor, Limit: c.batchLimit},
	})
	if err != nil {
		return nil, cursor, fmt.Errorf("failed to marshal poll request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, cursor, fmt.Errorf("failed to create poll request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, cursor, fmt.Errorf("%w: %v", errors.ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, cursor, fmt.Errorf("%w: rpc returned status %d", errors.ErrLedgerUnavailable, resp.StatusCode)
	}

	var decoded pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, cursor, fmt.Errorf("%w: %v", errors.ErrLedgerUnavailable, err)
	}

	if decoded.Error != nil {
		return nil, cursor, fmt.Errorf("%w: rpc error %d: %s", errors.ErrLedgerUnavailable, decoded.Error.Code, decoded.Error.Message)
	}

	if decoded.Result == nil {
		return nil, cursor, fmt.Errorf("%w: empty rpc result", errors.ErrLedgerUnavailable)
	}

	newCursor := decoded.Result.Cursor
	if newCursor == "" {
		newCursor = cursor
	}

	return decoded.Result.Events, newCursor, nil
}
