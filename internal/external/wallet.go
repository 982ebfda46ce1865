package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WalletClient hands transaction requests to the external wallet
// bridge, which owns signing and broadcasting. The coordination service
// never touches keys.
type WalletClient struct {
	baseURL    string
	httpClient *http.Client
}

type WalletConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SubmitRequest is the payload handed to the wallet bridge.
type SubmitRequest struct {
	RequestID string `json:"requestId"`
	Account   string `json:"account"`
	Method    string `json:"method"`
	Args      []any  `json:"args"`
	Value     int64  `json:"value"`
}

type SubmitResponse struct {
	Accepted bool   `json:"accepted"`
	TxHash   string `json:"txHash,omitempty"`
	Error    string `json:"error,omitempty"`
}

func NewWalletClient(cfg WalletConfig) *WalletClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &WalletClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Submit forwards the transaction request. The caller-supplied context
// bounds the call; elapsed deadlines surface as plain errors and never
// imply the transaction failed on-chain.
func (wc *WalletClient) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, wc.baseURL+"/transactions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := wc.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("wallet bridge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("wallet bridge returned status %d", resp.StatusCode)
	}

	var result SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode wallet bridge response: %w", err)
	}

	if !result.Accepted {
		return nil, fmt.Errorf("wallet bridge rejected transaction: %s", result.Error)
	}

	return &result, nil
}
