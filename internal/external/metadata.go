package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// MetadataClient fetches ticket NFT metadata blobs by token URI. The
// host is an opaque key-value store (IPFS gateway or plain HTTP); only
// the fields the marketplace renders are decoded.
type MetadataClient struct {
	gatewayURL string
	httpClient *http.Client
}

type MetadataConfig struct {
	GatewayURL string
	Timeout    time.Duration
}

// TicketMetadata is the subset of the token metadata document the
// coordination service cares about.
type TicketMetadata struct {
	Name  string `json:"name"`
	Venue string `json:"venue"`
	Tier  string `json:"tier"`
}

func NewMetadataClient(cfg MetadataConfig) *MetadataClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &MetadataClient{
		gatewayURL: strings.TrimSuffix(cfg.GatewayURL, "/") + "/",
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Fetch resolves a token URI and decodes the metadata document.
// ipfs:// URIs are rewritten through the configured gateway.
func (mc *MetadataClient) Fetch(ctx context.Context, tokenURI string) (*TicketMetadata, error) {
	url := tokenURI
	if strings.HasPrefix(tokenURI, "ipfs://") {
		url = mc.gatewayURL + strings.TrimPrefix(tokenURI, "ipfs://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := mc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata fetch returned status %d", resp.StatusCode)
	}

	var meta TicketMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	if meta.Tier == "" {
		meta.Tier = "Normal"
	}

	return &meta, nil
}
