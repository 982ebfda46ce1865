package query

import (
	"context"
	"testing"
	"time"

	"chamber/internal/errors"
	"chamber/internal/lifecycle"
	"chamber/internal/models"
	"chamber/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventAddr = "0xevent"

type fixture struct {
	store  *store.Store
	facade *Facade
	seq    uint32
}

func newFixture() *fixture {
	engine := lifecycle.New(lifecycle.DefaultParams())
	st := store.New(engine)
	return &fixture{
		store:  st,
		facade: New(st, engine, nil),
	}
}

func (f *fixture) addAuction(t *testing.T, tokenID int64, durationSec int64, tier string, highestBid int64) {
	t.Helper()
	f.seq++
	_, err := f.store.Apply(models.LedgerEvent{
		Kind:         models.KindAuctionCreated,
		EventAddress: eventAddr,
		TokenID:      tokenID,
		BlockNumber:  1,
		LogIndex:     f.seq,
		Timestamp:    time.Now(),
		Seller:       "0xseller",
		// Starting price low enough that any test bid clears it
		StartingPrice:   1,
		MinBidIncrement: 1,
		DurationSeconds: durationSec,
	})
	require.NoError(t, err)

	key := models.ListingKey{EventAddress: eventAddr, TokenID: tokenID}
	if tier != "" {
		f.store.SetAuctionMetadata(key, "Concert "+tier, "Arena", tier)
	}

	if highestBid > 0 {
		f.seq++
		_, err = f.store.Apply(models.LedgerEvent{
			Kind:         models.KindBidPlaced,
			EventAddress: eventAddr,
			TokenID:      tokenID,
			BlockNumber:  1,
			LogIndex:     f.seq,
			Timestamp:    time.Now(),
			Bidder:       "0xbidder",
			Amount:       highestBid,
		})
		require.NoError(t, err)
	}
}

func tokenIDs(items []models.AuctionResponseItem) []int64 {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.TokenID)
	}
	return ids
}

func TestListActive_ExcludesLazilyEnded(t *testing.T) {
	f := newFixture()
	f.addAuction(t, 1, 3600, "", 0)

	// Already past its end time despite the stored Active status
	f.seq++
	_, err := f.store.Apply(models.LedgerEvent{
		Kind:            models.KindAuctionCreated,
		EventAddress:    eventAddr,
		TokenID:         2,
		BlockNumber:     1,
		LogIndex:        f.seq,
		Timestamp:       time.Now().Add(-2 * time.Hour),
		Seller:          "0xseller",
		StartingPrice:   1,
		MinBidIncrement: 1,
		DurationSeconds: 60,
	})
	require.NoError(t, err)

	items := f.facade.ListActive(context.Background(), Filter{})
	assert.Equal(t, []int64{1}, tokenIDs(items))
}

func TestListActive_TierFilter(t *testing.T) {
	f := newFixture()
	f.addAuction(t, 1, 3600, "VIP", 0)
	f.addAuction(t, 2, 3600, "Normal", 0)
	f.addAuction(t, 3, 3600, "VIP", 0)

	items := f.facade.ListActive(context.Background(), Filter{Tier: "vip"})
	assert.Equal(t, []int64{1, 3}, tokenIDs(items))
}

func TestListActive_EndingWithin(t *testing.T) {
	f := newFixture()
	f.addAuction(t, 1, 1800, "", 0)
	f.addAuction(t, 2, 7200, "", 0)

	items := f.facade.ListActive(context.Background(), Filter{EndingWithinSeconds: DefaultEndingWindow})
	assert.Equal(t, []int64{1}, tokenIDs(items))
}

func TestListActive_SortByHighestBid(t *testing.T) {
	f := newFixture()
	f.addAuction(t, 1, 3600, "", 50)
	f.addAuction(t, 2, 3600, "", 200)
	f.addAuction(t, 3, 3600, "", 100)

	items := f.facade.ListActive(context.Background(), Filter{SortBy: SortByHighestBid})
	assert.Equal(t, []int64{2, 3, 1}, tokenIDs(items))
}

func TestListActive_SortByEndTimeDefault(t *testing.T) {
	f := newFixture()
	f.addAuction(t, 1, 7200, "", 0)
	f.addAuction(t, 2, 1800, "", 0)
	f.addAuction(t, 3, 3600, "", 0)

	items := f.facade.ListActive(context.Background(), Filter{})
	assert.Equal(t, []int64{2, 3, 1}, tokenIDs(items))
}

func TestListActive_FreeTextFallback(t *testing.T) {
	// No search client wired: matching falls back to the in-memory
	// title/venue scan
	f := newFixture()
	f.addAuction(t, 1, 3600, "VIP", 0)
	f.addAuction(t, 2, 3600, "Normal", 0)

	items := f.facade.ListActive(context.Background(), Filter{Query: "concert vip"})
	assert.Equal(t, []int64{1}, tokenIDs(items))

	items = f.facade.ListActive(context.Background(), Filter{Query: "arena"})
	assert.Equal(t, []int64{1, 2}, tokenIDs(items))

	items = f.facade.ListActive(context.Background(), Filter{Query: "opera"})
	assert.Empty(t, items)
}

func TestGetAuction_ResolvesEffectiveStatus(t *testing.T) {
	f := newFixture()

	f.seq++
	_, err := f.store.Apply(models.LedgerEvent{
		Kind:            models.KindAuctionCreated,
		EventAddress:    eventAddr,
		TokenID:         1,
		BlockNumber:     1,
		LogIndex:        f.seq,
		Timestamp:       time.Now().Add(-2 * time.Hour),
		Seller:          "0xseller",
		StartingPrice:   1,
		MinBidIncrement: 1,
		DurationSeconds: 60,
	})
	require.NoError(t, err)

	item, err := f.facade.GetAuction(models.ListingKey{EventAddress: eventAddr, TokenID: 1})
	require.NoError(t, err)
	assert.Equal(t, "ended", item.Status)

	_, err = f.facade.GetAuction(models.ListingKey{EventAddress: eventAddr, TokenID: 99})
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestListListings_ActiveFixedPriceOnly(t *testing.T) {
	f := newFixture()
	// Auctions never show up in the fixed-price list
	f.addAuction(t, 1, 3600, "", 0)

	f.seq++
	_, err := f.store.Apply(models.LedgerEvent{
		Kind:         models.KindListingCreated,
		EventAddress: eventAddr,
		TokenID:      2,
		BlockNumber:  1,
		LogIndex:     f.seq,
		Timestamp:    time.Now(),
		Seller:       "0xseller",
		Price:        500,
	})
	require.NoError(t, err)

	items := f.facade.ListListings()
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].TokenID)
	assert.Equal(t, int64(500), items[0].Price)
}

func TestGetUserBalance_UnknownReadsZero(t *testing.T) {
	f := newFixture()
	bal := f.facade.GetUserBalance("0xnobody", eventAddr)
	assert.Equal(t, int64(0), bal.TotalDeposited)
	assert.Equal(t, int64(0), bal.Available)
}
