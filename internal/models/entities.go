package models

import (
	"fmt"
	"time"
)

// Amounts are int64 counts of the smallest currency unit this service
// accounts in: 1 unit = 1 nano-AVAX (gwei). 0.01 AVAX = 10_000_000 units.

// DefaultMinBidIncrement is applied when an auction reports a zero
// minimum increment. 0.01 AVAX, the marketplace contract's flat floor.
const DefaultMinBidIncrement int64 = 10_000_000

// ListingKey identifies a ticket NFT on the marketplace: the event
// contract address plus the token id.
type ListingKey struct {
	EventAddress string `json:"event_address"`
	TokenID      int64  `json:"token_id"`
}

func (k ListingKey) String() string {
	return fmt.Sprintf("%s:%d", k.EventAddress, k.TokenID)
}

type SaleType int

const (
	SaleFixedPrice SaleType = iota
	SaleAuction
)

func (s SaleType) String() string {
	switch s {
	case SaleFixedPrice:
		return "fixed_price"
	case SaleAuction:
		return "auction"
	default:
		return "unknown"
	}
}

type ListingStatus int

const (
	ListingActive ListingStatus = iota
	ListingSold
	ListingCancelled
)

func (s ListingStatus) String() string {
	switch s {
	case ListingActive:
		return "active"
	case ListingSold:
		return "sold"
	case ListingCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type AuctionStatus int

const (
	AuctionActive AuctionStatus = iota
	AuctionEnded
	AuctionSettled
	AuctionCancelled
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionActive:
		return "active"
	case AuctionEnded:
		return "ended"
	case AuctionSettled:
		return "settled"
	case AuctionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Listing is an offer to sell a ticket NFT, fixed-price or auction.
// At most one active listing exists per key at any time.
type Listing struct {
	Key      ListingKey    `json:"key"`
	Seller   string        `json:"seller"`
	Price    int64         `json:"price"`
	SaleType SaleType      `json:"sale_type"`
	Status   ListingStatus `json:"status"`
	ListedAt time.Time     `json:"listed_at"`
}

// Auction is the auction-mode specialization of a listing.
// HighestBid only ever increases; EndTime only ever moves forward.
type Auction struct {
	Key             ListingKey    `json:"key"`
	Seller          string        `json:"seller"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	StartingPrice   int64         `json:"starting_price"`
	ReservePrice    int64         `json:"reserve_price"`
	MinBidIncrement int64         `json:"min_bid_increment"`
	HighestBid      int64         `json:"highest_bid"`
	HighestBidder   string        `json:"highest_bidder"`
	Status          AuctionStatus `json:"status"`
	ExtensionCount  int           `json:"extension_count"`
	BidCount        int           `json:"bid_count"`
	ReserveMet      bool          `json:"reserve_met"`
	SettledAt       *time.Time    `json:"settled_at,omitempty"`

	// Metadata enrichment from the token URI blob store.
	Title string `json:"title,omitempty"`
	Venue string `json:"venue,omitempty"`
	Tier  string `json:"tier,omitempty"`
}

// Increment returns the effective minimum increment for the auction.
func (a *Auction) Increment() int64 {
	if a.MinBidIncrement > 0 {
		return a.MinBidIncrement
	}
	return DefaultMinBidIncrement
}

// MinAcceptableBid is the lowest amount a new bid may carry. Before the
// first bid the starting price itself is acceptable.
func (a *Auction) MinAcceptableBid() int64 {
	if a.BidCount == 0 {
		if a.StartingPrice > 0 {
			return a.StartingPrice
		}
		return a.Increment()
	}
	return a.HighestBid + a.Increment()
}

// Terminal reports whether the auction reached a state with no
// transitions out of it.
func (a *Auction) Terminal() bool {
	return a.Status == AuctionSettled || a.Status == AuctionCancelled
}

// Bid records a single accepted bid in ledger order.
type Bid struct {
	Key         ListingKey `json:"key"`
	Bidder      string     `json:"bidder"`
	Amount      int64      `json:"amount"`
	SubmittedAt time.Time  `json:"submitted_at"`
	BlockNumber uint64     `json:"block_number"`
	LogIndex    uint32     `json:"log_index"`
}

// UserBalance mirrors the marketplace contract's escrow accounting for
// one (account, event contract) pair. All fields are non-negative and
// Available+Locked never exceeds TotalDeposited-TotalWithdrawn.
type UserBalance struct {
	Account        string `json:"account"`
	EventAddress   string `json:"event_address"`
	TotalDeposited int64  `json:"total_deposited"`
	Available      int64  `json:"available"`
	Locked         int64  `json:"locked"`
	TotalWithdrawn int64  `json:"total_withdrawn"`
	Profits        int64  `json:"profits"`
}

// Consistent checks the escrow accounting invariant.
func (b *UserBalance) Consistent() bool {
	if b.TotalDeposited < 0 || b.Available < 0 || b.Locked < 0 || b.TotalWithdrawn < 0 || b.Profits < 0 {
		return false
	}
	return b.Available+b.Locked <= b.TotalDeposited-b.TotalWithdrawn
}
