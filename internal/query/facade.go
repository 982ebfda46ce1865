package query

import (
	"context"
	"sort"
	"strings"
	"time"

	"chamber/internal/errors"
	"chamber/internal/lifecycle"
	"chamber/internal/logger"
	"chamber/internal/models"
	"chamber/internal/search"
	"chamber/internal/store"
)

// Sort orders for ListActive.
const (
	SortByEndTime    = "endTime"
	SortByHighestBid = "highestBid"
)

// DefaultEndingWindow is the "ending soon" horizon the marketplace UI
// uses: auctions closing within the hour.
const DefaultEndingWindow = 3600

// Filter narrows ListActive results.
type Filter struct {
	Tier                string
	EndingWithinSeconds int64
	SortBy              string
	Query               string
}

// Facade answers marketplace read queries from the last-committed store
// snapshot. Reconciliation problems never surface here: a stale answer
// beats no answer while the ledger hiccups.
type Facade struct {
	store  *store.Store
	engine *lifecycle.Engine
	search *search.Client
}

// New creates a façade. searchClient may be nil; free-text queries then
// match in memory.
func New(st *store.Store, engine *lifecycle.Engine, searchClient *search.Client) *Facade {
	return &Facade{store: st, engine: engine, search: searchClient}
}

// ListActive returns active auctions matching the filter. Auctions past
// their end time are excluded even before a settle lands, since the
// engine resolves Ended lazily.
func (f *Facade) ListActive(ctx context.Context, filter Filter) []models.AuctionResponseItem {
	now := time.Now()

	var keys map[string]struct{}
	if filter.Query != "" && f.search != nil {
		matched, err := f.search.SearchKeys(ctx, filter.Query)
		if err != nil {
			logger.WithContext(ctx).Warn("Search index unavailable, matching in memory",
				"error", err, "query", filter.Query)
		} else {
			keys = make(map[string]struct{}, len(matched))
			for _, k := range matched {
				keys[k] = struct{}{}
			}
		}
	}

	var result []models.AuctionResponseItem
	for _, a := range f.store.Auctions() {
		if f.engine.EffectiveStatus(&a, now) != models.AuctionActive {
			continue
		}
		if filter.Tier != "" && !strings.EqualFold(a.Tier, filter.Tier) {
			continue
		}
		if filter.EndingWithinSeconds > 0 {
			horizon := now.Add(time.Duration(filter.EndingWithinSeconds) * time.Second)
			if a.EndTime.After(horizon) {
				continue
			}
		}
		if filter.Query != "" {
			if keys != nil {
				if _, ok := keys[a.Key.String()]; !ok {
					continue
				}
			} else if !matchesQuery(&a, filter.Query) {
				continue
			}
		}
		result = append(result, models.NewAuctionResponseItem(&a, now))
	}

	switch filter.SortBy {
	case SortByHighestBid:
		sort.Slice(result, func(i, j int) bool {
			if result[i].HighestBid != result[j].HighestBid {
				return result[i].HighestBid > result[j].HighestBid
			}
			return lessKey(result[i], result[j])
		})
	default:
		sort.Slice(result, func(i, j int) bool {
			if !result[i].EndTime.Equal(result[j].EndTime) {
				return result[i].EndTime.Before(result[j].EndTime)
			}
			return lessKey(result[i], result[j])
		})
	}

	return result
}

func lessKey(a, b models.AuctionResponseItem) bool {
	if a.EventAddress != b.EventAddress {
		return a.EventAddress < b.EventAddress
	}
	return a.TokenID < b.TokenID
}

func matchesQuery(a *models.Auction, q string) bool {
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(a.Title), q) ||
		strings.Contains(strings.ToLower(a.Venue), q)
}

// GetAuction returns one auction with its lazily resolved status.
func (f *Facade) GetAuction(key models.ListingKey) (models.AuctionResponseItem, error) {
	auction, ok := f.store.GetAuction(key)
	if !ok {
		return models.AuctionResponseItem{}, errors.ErrNotFound
	}

	now := time.Now()
	auction.Status = f.engine.EffectiveStatus(&auction, now)
	return models.NewAuctionResponseItem(&auction, now), nil
}

// ListListings returns all active fixed-price listings.
func (f *Facade) ListListings() []models.ListingResponseItem {
	var result []models.ListingResponseItem
	for _, l := range f.store.Listings() {
		if l.Status != models.ListingActive || l.SaleType != models.SaleFixedPrice {
			continue
		}
		result = append(result, models.NewListingResponseItem(&l))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].EventAddress != result[j].EventAddress {
			return result[i].EventAddress < result[j].EventAddress
		}
		return result[i].TokenID < result[j].TokenID
	})

	return result
}

// GetUserBalance returns the mirrored escrow view for an account on one
// event contract. Unknown accounts read as zeros.
func (f *Facade) GetUserBalance(account, eventAddress string) models.UserBalanceResponse {
	bal := f.store.GetBalance(account, eventAddress)
	return models.NewUserBalanceResponse(&bal)
}
