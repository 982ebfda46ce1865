package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// avaxExponent converts nano-AVAX units into AVAX for display.
const avaxExponent = -9

// FormatAVAX renders an amount in units as a decimal AVAX string.
func FormatAVAX(units int64) string {
	return decimal.New(units, avaxExponent).String()
}

// ParseAVAX converts a decimal AVAX string into units. Fractions below
// one unit are rejected by the exactness check.
func ParseAVAX(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.Shift(-avaxExponent).IntPart(), nil
}

// CreateListingRequest - request to broker a fixed-price listing
type CreateListingRequest struct {
	EventAddress string `json:"event_address" binding:"required"`
	TokenID      int64  `json:"token_id" binding:"required"`
	Price        int64  `json:"price" binding:"required,gt=0"`
}

// CreateAuctionRequest - request to broker auction creation
type CreateAuctionRequest struct {
	EventAddress    string `json:"event_address" binding:"required"`
	TokenID         int64  `json:"token_id" binding:"required"`
	StartingPrice   int64  `json:"starting_price" binding:"gte=0"`
	ReservePrice    int64  `json:"reserve_price" binding:"gte=0"`
	DurationSeconds int64  `json:"duration_seconds" binding:"required,gt=0"`
	MinBidIncrement int64  `json:"min_bid_increment" binding:"gte=0"`
}

// PlaceBidRequest - request to broker a bid submission
type PlaceBidRequest struct {
	EventAddress string `json:"event_address" binding:"required"`
	TokenID      int64  `json:"token_id" binding:"required"`
	Amount       int64  `json:"amount" binding:"required,gt=0"`
}

// TxRequestResponse wraps the transaction parameters handed back to the
// wallet layer for signing and broadcast.
type TxRequestResponse struct {
	RequestID string `json:"request_id"`
	Method    string `json:"method"`
	Args      []any  `json:"args"`
	Value     int64  `json:"value"`
}

// AuctionResponseItem - one auction in list/get responses
type AuctionResponseItem struct {
	EventAddress   string     `json:"event_address"`
	TokenID        int64      `json:"token_id"`
	Seller         string     `json:"seller"`
	Status         string     `json:"status"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	HighestBid     int64      `json:"highest_bid"`
	HighestBidAVAX string     `json:"highest_bid_avax"`
	HighestBidder  string     `json:"highest_bidder,omitempty"`
	MinNextBid     int64      `json:"min_next_bid"`
	ReservePrice   int64      `json:"reserve_price"`
	ReserveMet     bool       `json:"reserve_met"`
	ExtensionCount int        `json:"extension_count"`
	BidCount       int        `json:"bid_count"`
	Title          string     `json:"title,omitempty"`
	Venue          string     `json:"venue,omitempty"`
	Tier           string     `json:"tier,omitempty"`
	SettledAt      *time.Time `json:"settled_at,omitempty"`
	SecondsToClose int64      `json:"seconds_to_close"`
}

// ListingResponseItem - one fixed-price listing in list responses
type ListingResponseItem struct {
	EventAddress string    `json:"event_address"`
	TokenID      int64     `json:"token_id"`
	Seller       string    `json:"seller"`
	Price        int64     `json:"price"`
	PriceAVAX    string    `json:"price_avax"`
	SaleType     string    `json:"sale_type"`
	Status       string    `json:"status"`
	ListedAt     time.Time `json:"listed_at"`
}

// UserBalanceResponse mirrors on-chain escrow for one account/event pair
type UserBalanceResponse struct {
	Account        string `json:"account"`
	EventAddress   string `json:"event_address"`
	TotalDeposited int64  `json:"total_deposited"`
	Available      int64  `json:"available"`
	Locked         int64  `json:"locked"`
	TotalWithdrawn int64  `json:"total_withdrawn"`
	Profits        int64  `json:"profits"`
	AvailableAVAX  string `json:"available_avax"`
}

// NewAuctionResponseItem maps a store auction into its API shape.
func NewAuctionResponseItem(a *Auction, now time.Time) AuctionResponseItem {
	secs := int64(a.EndTime.Sub(now).Seconds())
	if secs < 0 {
		secs = 0
	}
	return AuctionResponseItem{
		EventAddress:   a.Key.EventAddress,
		TokenID:        a.Key.TokenID,
		Seller:         a.Seller,
		Status:         a.Status.String(),
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		HighestBid:     a.HighestBid,
		HighestBidAVAX: FormatAVAX(a.HighestBid),
		HighestBidder:  a.HighestBidder,
		MinNextBid:     a.MinAcceptableBid(),
		ReservePrice:   a.ReservePrice,
		ReserveMet:     a.ReserveMet,
		ExtensionCount: a.ExtensionCount,
		BidCount:       a.BidCount,
		Title:          a.Title,
		Venue:          a.Venue,
		Tier:           a.Tier,
		SettledAt:      a.SettledAt,
		SecondsToClose: secs,
	}
}

// NewListingResponseItem maps a store listing into its API shape.
func NewListingResponseItem(l *Listing) ListingResponseItem {
	return ListingResponseItem{
		EventAddress: l.Key.EventAddress,
		TokenID:      l.Key.TokenID,
		Seller:       l.Seller,
		Price:        l.Price,
		PriceAVAX:    FormatAVAX(l.Price),
		SaleType:     l.SaleType.String(),
		Status:       l.Status.String(),
		ListedAt:     l.ListedAt,
	}
}

// NewUserBalanceResponse maps a store balance into its API shape.
func NewUserBalanceResponse(b *UserBalance) UserBalanceResponse {
	return UserBalanceResponse{
		Account:        b.Account,
		EventAddress:   b.EventAddress,
		TotalDeposited: b.TotalDeposited,
		Available:      b.Available,
		Locked:         b.Locked,
		TotalWithdrawn: b.TotalWithdrawn,
		Profits:        b.Profits,
		AvailableAVAX:  FormatAVAX(b.Available),
	}
}
