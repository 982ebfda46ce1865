package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"chamber/internal/models"
)

// APIBaseURL comes from the environment so the suite can target any
// running stack. Tests skip when it is unset.
func APIBaseURL(t *testing.T) string {
	url := os.Getenv("CHAMBER_API_URL")
	if url == "" {
		t.Skip("CHAMBER_API_URL not set, skipping integration test")
	}
	return url
}

// TestClient provides methods for testing the API
type TestClient struct {
	BaseURL    string
	Wallet     string
	HTTPClient *http.Client
}

// NewTestClient creates a new test client acting as one wallet
func NewTestClient(baseURL, wallet string) *TestClient {
	return &TestClient{
		BaseURL: baseURL,
		Wallet:  wallet,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// makeRequest makes an HTTP request and returns the response
func (c *TestClient) makeRequest(t *testing.T, method, path string, body interface{}) *http.Response {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reqBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Wallet != "" {
		req.Header.Set("X-Wallet-Address", c.Wallet)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// HealthCheck verifies the API is up
func (c *TestClient) HealthCheck(t *testing.T) {
	resp := c.makeRequest(t, "GET", "/health", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
}

// ListAuctions fetches active auctions with an optional query string
func (c *TestClient) ListAuctions(t *testing.T, queryString string) []models.AuctionResponseItem {
	resp := c.makeRequest(t, "GET", "/api/auctions"+queryString, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var decoded struct {
		Auctions []models.AuctionResponseItem `json:"auctions"`
		Count    int                          `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Failed to decode auctions response: %v", err)
	}

	return decoded.Auctions
}

// GetAuction fetches one auction by key
func (c *TestClient) GetAuction(t *testing.T, eventAddress string, tokenID int64) *models.AuctionResponseItem {
	resp := c.makeRequest(t, "GET", fmt.Sprintf("/api/auctions/%s/%d", eventAddress, tokenID), nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var item models.AuctionResponseItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		t.Fatalf("Failed to decode auction response: %v", err)
	}

	return &item
}

// PlaceBid submits a bid and returns the HTTP status with the decoded
// transaction response when accepted
func (c *TestClient) PlaceBid(t *testing.T, eventAddress string, tokenID, amount int64) (int, *models.TxRequestResponse) {
	resp := c.makeRequest(t, "POST", "/api/bids", models.PlaceBidRequest{
		EventAddress: eventAddress,
		TokenID:      tokenID,
		Amount:       amount,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return resp.StatusCode, nil
	}

	var tx models.TxRequestResponse
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		t.Fatalf("Failed to decode bid response: %v", err)
	}

	return resp.StatusCode, &tx
}

// GetBalance fetches the mirrored escrow balance for the client wallet
func (c *TestClient) GetBalance(t *testing.T, eventAddress string) *models.UserBalanceResponse {
	resp := c.makeRequest(t, "GET", fmt.Sprintf("/api/balances/%s/%s", c.Wallet, eventAddress), nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var bal models.UserBalanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&bal); err != nil {
		t.Fatalf("Failed to decode balance response: %v", err)
	}

	return &bal
}
