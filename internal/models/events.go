package models

import (
	"fmt"
	"time"
)

// Ledger event kinds, as reported by the marketplace contract.
const (
	KindListingCreated       = "listing.created"
	KindAuctionCreated       = "auction.created"
	KindBidPlaced            = "bid.placed"
	KindAuctionSettled       = "auction.settled"
	KindAuctionCancelled     = "auction.cancelled"
	KindListingCancelled     = "listing.cancelled"
	KindItemSold             = "item.sold"
	KindOwnershipTransferred = "ownership.transferred"
	KindFundsDeposited       = "funds.deposited"
	KindFundsWithdrawn       = "funds.withdrawn"
	KindProfitsCollected     = "profits.collected"
)

// LedgerEvent is one fact read from the chain. (BlockNumber, LogIndex)
// totally orders events and uniquely identifies them for replay
// detection.
type LedgerEvent struct {
	Kind         string    `json:"kind"`
	EventAddress string    `json:"event_address"`
	TokenID      int64     `json:"token_id"`
	BlockNumber  uint64    `json:"block_number"`
	LogIndex     uint32    `json:"log_index"`
	Timestamp    time.Time `json:"timestamp"`

	// Kind-specific payload. Unused fields stay zero.
	Seller          string `json:"seller,omitempty"`
	Bidder          string `json:"bidder,omitempty"`
	Account         string `json:"account,omitempty"`
	From            string `json:"from,omitempty"`
	To              string `json:"to,omitempty"`
	Price           int64  `json:"price,omitempty"`
	Amount          int64  `json:"amount,omitempty"`
	SaleType        int    `json:"sale_type,omitempty"`
	StartingPrice   int64  `json:"starting_price,omitempty"`
	ReservePrice    int64  `json:"reserve_price,omitempty"`
	MinBidIncrement int64  `json:"min_bid_increment,omitempty"`
	DurationSeconds int64  `json:"duration_seconds,omitempty"`
	TokenURI        string `json:"token_uri,omitempty"`
}

// ID returns the unique replay key for the event.
func (e *LedgerEvent) ID() string {
	return fmt.Sprintf("%d:%d", e.BlockNumber, e.LogIndex)
}

// Key returns the listing key the event refers to.
func (e *LedgerEvent) Key() ListingKey {
	return ListingKey{EventAddress: e.EventAddress, TokenID: e.TokenID}
}

// NATS coordination subjects.
const (
	SubjectBidSubmitted     = "bid.submitted"
	SubjectBidConfirmed     = "bid.confirmed"
	SubjectAuctionExtended  = "auction.extended"
	SubjectAuctionEnded     = "auction.ended"
	SubjectAuctionSettled   = "auction.settled"
	SubjectAuctionCancelled = "auction.cancelled"
)

// BidSubmittedEvent is published when the coordinator accepts a bid for
// ledger submission. Submitted, not settled: confirmation arrives only
// when the corresponding BidPlaced ledger event lands in the store.
type BidSubmittedEvent struct {
	Key       ListingKey `json:"key"`
	Bidder    string     `json:"bidder"`
	Amount    int64      `json:"amount"`
	RequestID string     `json:"request_id"`
	Timestamp time.Time  `json:"timestamp"`
}

// BidConfirmedEvent is published when a BidPlaced ledger event is
// applied to the store.
type BidConfirmedEvent struct {
	Key         ListingKey `json:"key"`
	Bidder      string     `json:"bidder"`
	Amount      int64      `json:"amount"`
	BlockNumber uint64     `json:"block_number"`
	Timestamp   time.Time  `json:"timestamp"`
}

// AuctionExtendedEvent records a soft-close extension.
type AuctionExtendedEvent struct {
	Key            ListingKey `json:"key"`
	NewEndTime     time.Time  `json:"new_end_time"`
	ExtensionCount int        `json:"extension_count"`
	Timestamp      time.Time  `json:"timestamp"`
}

// AuctionEndedEvent is published when the settlement watcher first
// observes an auction past its end time.
type AuctionEndedEvent struct {
	Key           ListingKey `json:"key"`
	HighestBid    int64      `json:"highest_bid"`
	HighestBidder string     `json:"highest_bidder"`
	Timestamp     time.Time  `json:"timestamp"`
}

// AuctionSettledEvent is published when an AuctionSettled ledger event
// is applied to the store.
type AuctionSettledEvent struct {
	Key        ListingKey `json:"key"`
	Winner     string     `json:"winner"`
	FinalBid   int64      `json:"final_bid"`
	ReserveMet bool       `json:"reserve_met"`
	Timestamp  time.Time  `json:"timestamp"`
}

// AuctionCancelledEvent is published when an AuctionCancelled ledger
// event is applied to the store.
type AuctionCancelledEvent struct {
	Key       ListingKey `json:"key"`
	Seller    string     `json:"seller"`
	Timestamp time.Time  `json:"timestamp"`
}
