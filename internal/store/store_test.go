package store

import (
	"testing"
	"time"

	"chamber/internal/errors"
	"chamber/internal/lifecycle"
	"chamber/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eventAddr = "0xevent"
	alice     = "0xalice"
	bob       = "0xbob"
	carol     = "0xcarol"
)

func newTestStore() *Store {
	return New(lifecycle.New(lifecycle.DefaultParams()))
}

var seq = struct {
	block uint64
	log   uint32
}{block: 1}

func nextEvent(kind string, tokenID int64) models.LedgerEvent {
	seq.log++
	return models.LedgerEvent{
		Kind:         kind,
		EventAddress: eventAddr,
		TokenID:      tokenID,
		BlockNumber:  seq.block,
		LogIndex:     seq.log,
		Timestamp:    time.Now(),
	}
}

func deposit(account string, amount int64) models.LedgerEvent {
	e := nextEvent(models.KindFundsDeposited, 0)
	e.Account = account
	e.Amount = amount
	return e
}

func createAuction(tokenID, starting, reserve, durationSec int64) models.LedgerEvent {
	e := nextEvent(models.KindAuctionCreated, tokenID)
	e.Seller = carol
	e.StartingPrice = starting
	e.ReservePrice = reserve
	e.MinBidIncrement = 10
	e.DurationSeconds = durationSec
	return e
}

func placeBid(tokenID int64, bidder string, amount int64) models.LedgerEvent {
	e := nextEvent(models.KindBidPlaced, tokenID)
	e.Bidder = bidder
	e.Amount = amount
	return e
}

func mustApply(t *testing.T, s *Store, e models.LedgerEvent) ApplyResult {
	t.Helper()
	result, err := s.Apply(e)
	require.NoError(t, err)
	require.True(t, result.Applied)
	return result
}

func TestApply_IdempotentReplay(t *testing.T) {
	s := newTestStore()

	dep := deposit(alice, 1000)
	mustApply(t, s, dep)

	// Replaying the exact same event must not double the balance
	result, err := s.Apply(dep)
	assert.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.False(t, result.Applied)

	bal := s.GetBalance(alice, eventAddr)
	assert.Equal(t, int64(1000), bal.TotalDeposited)
	assert.Equal(t, int64(1000), bal.Available)
}

func TestApply_MalformedEventRejected(t *testing.T) {
	s := newTestStore()

	_, err := s.Apply(models.LedgerEvent{Kind: "nonsense", BlockNumber: 1, LogIndex: 1})
	assert.ErrorIs(t, err, errors.ErrMalformedEvent)

	bid := placeBid(1, "", 100)
	_, err = s.Apply(bid)
	assert.ErrorIs(t, err, errors.ErrMalformedEvent)

	// Rejected events are not remembered: a corrected version with the
	// same id can still apply
	assert.Equal(t, 0, s.AppliedCount())
}

func TestApply_BidMovesEscrow(t *testing.T) {
	s := newTestStore()
	mustApply(t, s, deposit(alice, 1000))
	mustApply(t, s, deposit(bob, 1000))
	mustApply(t, s, createAuction(1, 100, 0, 600))

	key := models.ListingKey{EventAddress: eventAddr, TokenID: 1}

	mustApply(t, s, placeBid(1, alice, 100))

	aliceBal := s.GetBalance(alice, eventAddr)
	assert.Equal(t, int64(900), aliceBal.Available)
	assert.Equal(t, int64(100), aliceBal.Locked)

	// Bob outbids: alice's lock flows back, bob's lock appears
	mustApply(t, s, placeBid(1, bob, 200))

	aliceBal = s.GetBalance(alice, eventAddr)
	assert.Equal(t, int64(1000), aliceBal.Available)
	assert.Equal(t, int64(0), aliceBal.Locked)

	bobBal := s.GetBalance(bob, eventAddr)
	assert.Equal(t, int64(800), bobBal.Available)
	assert.Equal(t, int64(200), bobBal.Locked)

	auction, ok := s.GetAuction(key)
	require.True(t, ok)
	assert.Equal(t, bob, auction.HighestBidder)
	assert.Equal(t, int64(200), auction.HighestBid)
	assert.Equal(t, 2, auction.BidCount)
	assert.Len(t, s.Bids(key), 2)
}

func TestApply_SelfOutbidLocksOnlyDelta(t *testing.T) {
	s := newTestStore()
	mustApply(t, s, deposit(alice, 1000))
	mustApply(t, s, createAuction(1, 100, 0, 600))

	mustApply(t, s, placeBid(1, alice, 100))
	mustApply(t, s, placeBid(1, alice, 300))

	bal := s.GetBalance(alice, eventAddr)
	assert.Equal(t, int64(700), bal.Available)
	assert.Equal(t, int64(300), bal.Locked)
}

func TestApply_NonMonotonicBidRejected(t *testing.T) {
	s := newTestStore()
	mustApply(t, s, deposit(alice, 1000))
	mustApply(t, s, deposit(bob, 1000))
	mustApply(t, s, createAuction(1, 100, 0, 600))
	mustApply(t, s, placeBid(1, alice, 500))

	_, err := s.Apply(placeBid(1, bob, 400))
	assert.ErrorIs(t, err, errors.ErrStoreInconsistent)

	// Nothing committed: the failed event left no partial writes
	key := models.ListingKey{EventAddress: eventAddr, TokenID: 1}
	auction, _ := s.GetAuction(key)
	assert.Equal(t, alice, auction.HighestBidder)
	assert.Equal(t, int64(0), s.GetBalance(bob, eventAddr).Locked)
	assert.Len(t, s.Bids(key), 1)
}

func TestApply_BidForUnknownAuction(t *testing.T) {
	s := newTestStore()
	_, err := s.Apply(placeBid(9, alice, 100))
	assert.ErrorIs(t, err, errors.ErrStoreInconsistent)
}

func TestApply_SettlePaysOutOnce(t *testing.T) {
	s := newTestStore()
	mustApply(t, s, deposit(alice, 100_000_000))
	mustApply(t, s, deposit(bob, 200_000_000))

	created := createAuction(1, 100, 50_000_000, 60)
	mustApply(t, s, created)
	mustApply(t, s, placeBid(1, alice, 60_000_000))
	mustApply(t, s, placeBid(1, bob, 70_000_000))

	// Past the end time even if soft-close extensions fired
	settle := nextEvent(models.KindAuctionSettled, 1)
	settle.Timestamp = time.Now().Add(30 * time.Minute)
	result := mustApply(t, s, settle)
	assert.Equal(t, bob, result.Winner)
	assert.Equal(t, int64(70_000_000), result.FinalBid)
	assert.True(t, result.ReserveMet)

	key := models.ListingKey{EventAddress: eventAddr, TokenID: 1}
	owner, ok := s.GetOwner(key)
	require.True(t, ok)
	assert.Equal(t, bob, owner)

	sellerBal := s.GetBalance(carol, eventAddr)
	assert.Equal(t, int64(70_000_000), sellerBal.Profits)

	bobBal := s.GetBalance(bob, eventAddr)
	assert.Equal(t, int64(0), bobBal.Locked)
	assert.Equal(t, int64(200_000_000-70_000_000), bobBal.TotalDeposited)
	assert.Equal(t, int64(200_000_000-70_000_000), bobBal.Available)

	// Alice was outbid, her escrow is intact
	aliceBal := s.GetBalance(alice, eventAddr)
	assert.Equal(t, int64(100_000_000), aliceBal.Available)

	// A replayed settle changes nothing
	dup, err := s.Apply(settle)
	assert.NoError(t, err)
	assert.True(t, dup.Duplicate)
	assert.Equal(t, int64(70_000_000), s.GetBalance(carol, eventAddr).Profits)
}

func TestApply_SettleReserveNotMet(t *testing.T) {
	s := newTestStore()
	mustApply(t, s, deposit(alice, 1000))

	created := createAuction(1, 100, 500, 60)
	mustApply(t, s, created)
	mustApply(t, s, placeBid(1, alice, 200))

	settle := nextEvent(models.KindAuctionSettled, 1)
	settle.Timestamp = time.Now().Add(30 * time.Minute)
	result := mustApply(t, s, settle)
	assert.False(t, result.ReserveMet)

	// No sale: the leader's escrow is released, the seller gets nothing
	bal := s.GetBalance(alice, eventAddr)
	assert.Equal(t, int64(1000), bal.Available)
	assert.Equal(t, int64(0), bal.Locked)
	assert.Equal(t, int64(0), s.GetBalance(carol, eventAddr).Profits)

	key := models.ListingKey{EventAddress: eventAddr, TokenID: 1}
	_, hasOwner := s.GetOwner(key)
	assert.False(t, hasOwner)

	listing, ok := s.GetListing(key)
	require.True(t, ok)
	assert.Equal(t, models.ListingCancelled, listing.Status)
}

func TestApply_WithdrawalCannotOverdraw(t *testing.T) {
	s := newTestStore()
	mustApply(t, s, deposit(alice, 500))

	w := nextEvent(models.KindFundsWithdrawn, 0)
	w.Account = alice
	w.Amount = 600
	_, err := s.Apply(w)
	assert.ErrorIs(t, err, errors.ErrStoreInconsistent)

	bal := s.GetBalance(alice, eventAddr)
	assert.Equal(t, int64(500), bal.Available)
	assert.Equal(t, int64(0), bal.TotalWithdrawn)
}

func TestApply_SecondActiveListingRejected(t *testing.T) {
	s := newTestStore()
	mustApply(t, s, createAuction(1, 100, 0, 600))

	listing := nextEvent(models.KindListingCreated, 1)
	listing.Seller = carol
	listing.Price = 500
	_, err := s.Apply(listing)
	assert.ErrorIs(t, err, errors.ErrStoreInconsistent)
}

func TestHasBidAtLeast(t *testing.T) {
	s := newTestStore()
	mustApply(t, s, deposit(alice, 1000))
	mustApply(t, s, createAuction(1, 100, 0, 600))
	mustApply(t, s, placeBid(1, alice, 150))

	key := models.ListingKey{EventAddress: eventAddr, TokenID: 1}
	assert.True(t, s.HasBidAtLeast(key, alice, 150))
	assert.True(t, s.HasBidAtLeast(key, "0xALICE", 100))
	assert.False(t, s.HasBidAtLeast(key, alice, 200))
	assert.False(t, s.HasBidAtLeast(key, bob, 150))
}

func TestApply_FixedPriceSale(t *testing.T) {
	s := newTestStore()
	mustApply(t, s, deposit(bob, 1000))

	listing := nextEvent(models.KindListingCreated, 2)
	listing.Seller = carol
	listing.Price = 400
	mustApply(t, s, listing)

	sold := nextEvent(models.KindItemSold, 2)
	sold.To = bob
	sold.Amount = 400
	mustApply(t, s, sold)

	key := models.ListingKey{EventAddress: eventAddr, TokenID: 2}
	l, ok := s.GetListing(key)
	require.True(t, ok)
	assert.Equal(t, models.ListingSold, l.Status)

	owner, _ := s.GetOwner(key)
	assert.Equal(t, bob, owner)
	assert.Equal(t, int64(600), s.GetBalance(bob, eventAddr).Available)
	assert.Equal(t, int64(400), s.GetBalance(carol, eventAddr).Profits)
}
