package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chamber/internal/coordinator"
	"chamber/internal/external"
	"chamber/internal/lifecycle"
	"chamber/internal/messaging"
	"chamber/internal/middleware"
	"chamber/internal/models"
	"chamber/internal/query"
	"chamber/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eventAddr = "0xevent"
	seller    = "0xseller"
	alice     = "0xalice"
	bob       = "0xbob"
)

type acceptingWallet struct{}

func (acceptingWallet) Submit(ctx context.Context, req *external.SubmitRequest) (*external.SubmitResponse, error) {
	return &external.SubmitResponse{Accepted: true, TxHash: "0xabc"}, nil
}

type fixture struct {
	router *gin.Engine
	store  *store.Store
	coord  *coordinator.Coordinator
	seq    uint32
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := lifecycle.New(lifecycle.DefaultParams())
	st := store.New(engine)
	coord := coordinator.New(st, engine, acceptingWallet{}, messaging.Noop(), time.Second, time.Minute)
	facade := query.New(st, engine, nil)

	h := NewHandlers(coord, facade, nil)

	r := gin.New()
	api := r.Group("/api")
	{
		auctions := api.Group("/auctions")
		{
			auctions.GET("", h.ListAuctions)
			auctions.GET("/:eventAddress/:tokenId", h.GetAuction)
		}

		api.GET("/listings", h.ListListings)
		api.GET("/balances/:account/:eventAddress", h.GetUserBalance)

		writes := api.Group("")
		writes.Use(middleware.WalletAuth())
		{
			writes.POST("/listings", h.CreateListing)
			writes.POST("/auctions", h.CreateAuction)
			writes.POST("/bids", h.PlaceBid)
			writes.POST("/auctions/:eventAddress/:tokenId/settle", h.SettleAuction)
			writes.POST("/auctions/:eventAddress/:tokenId/cancel", h.CancelAuction)
		}
	}

	return &fixture{router: r, store: st, coord: coord}
}

// confirm replays a ledger event into the store and releases the
// in-flight slot, standing in for the reconciliation loop.
func (f *fixture) confirm(t *testing.T, e models.LedgerEvent) {
	t.Helper()
	f.seq++
	e.BlockNumber = 1
	e.LogIndex = f.seq
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := f.store.Apply(e)
	require.NoError(t, err)
	if e.Kind == models.KindBidPlaced {
		f.coord.Resolve(e.Key(), e.Bidder)
	}
}

func (f *fixture) post(path, wallet string, body any) *httptest.ResponseRecorder {
	jsonBody, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", path, bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	if wallet != "" {
		req.Header.Set("X-Wallet-Address", wallet)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestWriteEndpointsRequireWallet(t *testing.T) {
	f := setup(t)

	w := f.post("/api/bids", "", models.PlaceBidRequest{EventAddress: eventAddr, TokenID: 1, Amount: 100})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPlaceBid_UnknownAuction(t *testing.T) {
	f := setup(t)

	w := f.post("/api/bids", alice, models.PlaceBidRequest{EventAddress: eventAddr, TokenID: 9, Amount: 100})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuctionFlow_ReserveBidsAndSettle(t *testing.T) {
	f := setup(t)

	// Escrow deposits mirror in
	f.confirm(t, models.LedgerEvent{Kind: models.KindFundsDeposited, EventAddress: eventAddr, Account: alice, Amount: 100_000_000})
	f.confirm(t, models.LedgerEvent{Kind: models.KindFundsDeposited, EventAddress: eventAddr, Account: bob, Amount: 100_000_000})

	// Seller brokers auction creation: accepted, then confirmed on the
	// ledger with reserve 50M
	w := f.post("/api/auctions", seller, models.CreateAuctionRequest{
		EventAddress: eventAddr, TokenID: 1,
		StartingPrice: 10_000_000, ReservePrice: 50_000_000, DurationSeconds: 3600,
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	f.confirm(t, models.LedgerEvent{
		Kind: models.KindAuctionCreated, EventAddress: eventAddr, TokenID: 1,
		Seller: seller, StartingPrice: 10_000_000, ReservePrice: 50_000_000,
		MinBidIncrement: models.DefaultMinBidIncrement, DurationSeconds: 3600,
	})

	// Alice bids 60M, bob outbids at 70M
	w = f.post("/api/bids", alice, models.PlaceBidRequest{EventAddress: eventAddr, TokenID: 1, Amount: 60_000_000})
	require.Equal(t, http.StatusAccepted, w.Code)
	f.confirm(t, models.LedgerEvent{Kind: models.KindBidPlaced, EventAddress: eventAddr, TokenID: 1, Bidder: alice, Amount: 60_000_000})

	w = f.post("/api/bids", bob, models.PlaceBidRequest{EventAddress: eventAddr, TokenID: 1, Amount: 70_000_000})
	require.Equal(t, http.StatusAccepted, w.Code)
	f.confirm(t, models.LedgerEvent{Kind: models.KindBidPlaced, EventAddress: eventAddr, TokenID: 1, Bidder: bob, Amount: 70_000_000})

	// A losing raise from alice below the increment
	w = f.post("/api/bids", alice, models.PlaceBidRequest{EventAddress: eventAddr, TokenID: 1, Amount: 70_000_001})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Auction shows bob leading with the reserve met
	w = f.get("/api/auctions/" + eventAddr + "/1")
	require.Equal(t, http.StatusOK, w.Code)
	var item models.AuctionResponseItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.Equal(t, bob, item.HighestBidder)
	assert.Equal(t, int64(70_000_000), item.HighestBid)
	assert.True(t, item.ReserveMet)
	assert.Equal(t, 2, item.BidCount)

	// Settling early is a conflict
	w = f.post("/api/auctions/"+eventAddr+"/1/settle", seller, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// The settle confirms on the ledger after the window closes
	f.confirm(t, models.LedgerEvent{
		Kind: models.KindAuctionSettled, EventAddress: eventAddr, TokenID: 1,
		Timestamp: time.Now().Add(2 * time.Hour),
	})

	// Winner paid exactly once, loser refunded
	w = f.get("/api/balances/" + bob + "/" + eventAddr)
	require.Equal(t, http.StatusOK, w.Code)
	var bal models.UserBalanceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bal))
	assert.Equal(t, int64(30_000_000), bal.Available)
	assert.Equal(t, int64(0), bal.Locked)

	w = f.get("/api/balances/" + alice + "/" + eventAddr)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bal))
	assert.Equal(t, int64(100_000_000), bal.Available)

	w = f.get("/api/balances/" + seller + "/" + eventAddr)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bal))
	assert.Equal(t, int64(70_000_000), bal.Profits)

	// Settling again reports the terminal state without a new payout
	w = f.post("/api/auctions/"+eventAddr+"/1/settle", seller, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListAuctions_FilterRoundTrip(t *testing.T) {
	f := setup(t)

	f.confirm(t, models.LedgerEvent{
		Kind: models.KindAuctionCreated, EventAddress: eventAddr, TokenID: 1,
		Seller: seller, StartingPrice: 1, MinBidIncrement: 1, DurationSeconds: 3600,
	})
	f.store.SetAuctionMetadata(models.ListingKey{EventAddress: eventAddr, TokenID: 1}, "Show", "Hall", "VIP")

	f.confirm(t, models.LedgerEvent{
		Kind: models.KindAuctionCreated, EventAddress: eventAddr, TokenID: 2,
		Seller: seller, StartingPrice: 1, MinBidIncrement: 1, DurationSeconds: 3600,
	})

	w := f.get("/api/auctions?tier=VIP")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Auctions []models.AuctionResponseItem `json:"auctions"`
		Count    int                          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, int64(1), resp.Auctions[0].TokenID)

	w = f.get("/api/auctions?sortBy=bogus")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.get("/api/auctions?endingWithinSeconds=-5")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelAuction_Conflict(t *testing.T) {
	f := setup(t)

	f.confirm(t, models.LedgerEvent{
		Kind: models.KindAuctionCreated, EventAddress: eventAddr, TokenID: 1,
		Seller: seller, StartingPrice: 1, MinBidIncrement: 1, DurationSeconds: 3600,
	})
	f.confirm(t, models.LedgerEvent{
		Kind: models.KindBidPlaced, EventAddress: eventAddr, TokenID: 1, Bidder: alice, Amount: 1,
	})

	w := f.post("/api/auctions/"+eventAddr+"/1/cancel", seller, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}
