package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chamber/internal/config"
	"chamber/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Client indexes auction metadata so the query façade can answer
// free-text searches (title, venue) without scanning the store.
type Client struct {
	client *elasticsearch.Client
	config config.ElasticsearchConfig
}

// AuctionDocument is the indexed shape of one auction.
type AuctionDocument struct {
	Key          string    `json:"key"`
	EventAddress string    `json:"event_address"`
	TokenID      int64     `json:"token_id"`
	Title        string    `json:"title"`
	Venue        string    `json:"venue"`
	Tier         string    `json:"tier"`
	HighestBid   int64     `json:"highest_bid"`
	EndTime      time.Time `json:"end_time"`
	Status       string    `json:"status"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func NewClient(cfg config.ElasticsearchConfig) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	client := &Client{
		client: es,
		config: cfg,
	}

	if err := client.ensureIndex(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure index exists: %w", err)
	}

	return client, nil
}

func (c *Client) ensureIndex(ctx context.Context) error {
	req := esapi.IndicesExistsRequest{
		Index: []string{c.config.Index},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		slog.Info("Elasticsearch index already exists", "index", c.config.Index)
		return nil
	}

	mapping := map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"key": map[string]interface{}{
					"type": "keyword",
				},
				"event_address": map[string]interface{}{
					"type": "keyword",
				},
				"token_id": map[string]interface{}{
					"type": "long",
				},
				"title": map[string]interface{}{
					"type": "text",
					"fields": map[string]interface{}{
						"keyword": map[string]interface{}{
							"type":         "keyword",
							"ignore_above": 256,
						},
					},
				},
				"venue": map[string]interface{}{
					"type": "text",
				},
				"tier": map[string]interface{}{
					"type": "keyword",
				},
				"highest_bid": map[string]interface{}{
					"type": "long",
				},
				"end_time": map[string]interface{}{
					"type":   "date",
					"format": "strict_date_optional_time||epoch_millis",
				},
				"status": map[string]interface{}{
					"type": "keyword",
				},
				"updated_at": map[string]interface{}{
					"type": "date",
				},
			},
		},
	}

	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	createReq := esapi.IndicesCreateRequest{
		Index: c.config.Index,
		Body:  strings.NewReader(string(mappingJSON)),
	}

	createRes, err := createReq.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("failed to create index: %s", createRes.String())
	}

	slog.Info("Created Elasticsearch index", "index", c.config.Index)
	return nil
}

// IndexAuction upserts one auction document, keyed by listing key so
// re-indexing is idempotent.
func (c *Client) IndexAuction(ctx context.Context, a *models.Auction) error {
	doc := AuctionDocument{
		Key:          a.Key.String(),
		EventAddress: a.Key.EventAddress,
		TokenID:      a.Key.TokenID,
		Title:        a.Title,
		Venue:        a.Venue,
		Tier:         a.Tier,
		HighestBid:   a.HighestBid,
		EndTime:      a.EndTime,
		Status:       a.Status.String(),
		UpdatedAt:    time.Now(),
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal auction document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.config.Index,
		DocumentID: doc.Key,
		Body:       strings.NewReader(string(docJSON)),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to index auction: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("Elasticsearch error: %s", res.String())
	}

	return nil
}

// SearchKeys returns the listing keys of auctions matching a free-text
// query over title and venue.
func (c *Client) SearchKeys(ctx context.Context, query string) ([]string, error) {
	searchRequest := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query,
				"fields":    []string{"title^2", "venue"},
				"fuzziness": "AUTO",
			},
		},
		"_source": []string{"key"},
		"size":    100,
	}

	searchJSON, err := json.Marshal(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{c.config.Index},
		Body:  strings.NewReader(string(searchJSON)),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("Elasticsearch error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Hits []struct {
				Source struct {
					Key string `json:"key"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	keys := make([]string, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		keys = append(keys, hit.Source.Key)
	}

	return keys, nil
}
