package coordinator

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"chamber/internal/errors"
	"chamber/internal/external"
	"chamber/internal/ledger"
	"chamber/internal/lifecycle"
	"chamber/internal/logger"
	"chamber/internal/messaging"
	"chamber/internal/metrics"
	"chamber/internal/models"
	"chamber/internal/store"

	"github.com/google/uuid"
)

// Submitter hands a transaction request to the wallet layer.
type Submitter interface {
	Submit(ctx context.Context, req *external.SubmitRequest) (*external.SubmitResponse, error)
}

// Coordinator gates every state-changing marketplace call before it
// reaches the ledger. Bids doomed to fail are rejected locally, and at
// most one bid per (auction, bidder) is ever in flight at a time.
type Coordinator struct {
	store  *store.Store
	engine *lifecycle.Engine
	wallet Submitter
	nats   *messaging.NATSClient

	submitTimeout time.Duration
	pendingGrace  time.Duration

	mu       sync.Mutex
	inflight map[string]*inflightBid
}

// inflightBid tracks one accepted submission until it resolves: either
// the BidPlaced event lands in the store, the wallet reports a failure,
// or the submit times out and the entry turns pending.
type inflightBid struct {
	amount      int64
	submittedAt time.Time

	// pending means the submit call timed out with the outcome
	// unknown. A retry must first re-check the store: the bid may have
	// landed anyway, and racing a still-pending transaction with a
	// duplicate is exactly the double-submit bug this lock exists for.
	pending bool
}

func New(st *store.Store, engine *lifecycle.Engine, wallet Submitter, nats *messaging.NATSClient, submitTimeout, pendingGrace time.Duration) *Coordinator {
	if submitTimeout <= 0 {
		submitTimeout = 20 * time.Second
	}
	if pendingGrace <= 0 {
		pendingGrace = time.Minute
	}

	return &Coordinator{
		store:         st,
		engine:        engine,
		wallet:        wallet,
		nats:          nats,
		submitTimeout: submitTimeout,
		pendingGrace:  pendingGrace,
		inflight:      make(map[string]*inflightBid),
	}
}

func inflightKey(key models.ListingKey, bidder string) string {
	return key.String() + "|" + strings.ToLower(bidder)
}

// SubmitBid validates and forwards one bid. Validation order: auction
// exists and is active, window still open, amount clears the minimum
// increment, bidder has the funds. Acceptance means submitted, not
// settled; confirmation is the BidPlaced event replaying through the
// store.
func (c *Coordinator) SubmitBid(ctx context.Context, key models.ListingKey, bidder string, amount int64) (*models.TxRequestResponse, error) {
	auction, ok := c.store.GetAuction(key)
	if !ok {
		metrics.BidsRejected.WithLabelValues("not_found").Inc()
		return nil, errors.ErrNotFound
	}

	now := time.Now()
	if err := c.engine.ValidateBid(&auction, amount, now); err != nil {
		metrics.BidsRejected.WithLabelValues(reasonLabel(err)).Inc()
		return nil, err
	}

	// If the bidder already leads, only the delta over their locked bid
	// must be available.
	required := amount
	if strings.EqualFold(auction.HighestBidder, bidder) {
		required = amount - auction.HighestBid
	}
	if bal := c.store.GetBalance(bidder, key.EventAddress); bal.Available < required {
		metrics.BidsRejected.WithLabelValues(reasonLabel(errors.ErrInsufficientBalance)).Inc()
		return nil, errors.ErrInsufficientBalance
	}

	if err := c.acquire(key, bidder, amount, now); err != nil {
		metrics.BidsRejected.WithLabelValues(reasonLabel(err)).Inc()
		return nil, err
	}

	requestID := uuid.New().String()
	tx := ledger.PlaceBidTx(key, amount)

	submitCtx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	_, err := c.wallet.Submit(submitCtx, &external.SubmitRequest{
		RequestID: requestID,
		Account:   bidder,
		Method:    tx.Method,
		Args:      tx.Args,
		Value:     tx.Value,
	})
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(submitCtx.Err(), context.DeadlineExceeded) {
			// Outcome unknown: keep the slot guarded until the store or
			// the grace period says otherwise.
			c.markPending(key, bidder)
			return nil, fmt.Errorf("bid submission timed out: %w", err)
		}
		c.Resolve(key, bidder)
		return nil, fmt.Errorf("bid submission failed: %w", err)
	}

	metrics.BidsAccepted.Inc()

	if err := c.nats.Publish(models.SubjectBidSubmitted, models.BidSubmittedEvent{
		Key:       key,
		Bidder:    bidder,
		Amount:    amount,
		RequestID: requestID,
		Timestamp: now,
	}); err != nil {
		logger.WithContext(ctx).Error("Failed to publish bid submitted event",
			"error", err, "auction", key.String(), "bidder", bidder)
	}

	return &models.TxRequestResponse{
		RequestID: requestID,
		Method:    tx.Method,
		Args:      tx.Args,
		Value:     tx.Value,
	}, nil
}

// acquire takes the per-(auction, bidder) in-flight slot with
// insert-if-absent semantics.
func (c *Coordinator) acquire(key models.ListingKey, bidder string, amount int64, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := inflightKey(key, bidder)
	if entry, exists := c.inflight[k]; exists {
		if !entry.pending {
			return errors.ErrBidInFlight
		}

		// Previous submit timed out. Allow a retry only once the store
		// proves the earlier bid landed, or after the grace period.
		if c.store.HasBidAtLeast(key, bidder, entry.amount) {
			delete(c.inflight, k)
		} else if now.Sub(entry.submittedAt) < c.pendingGrace {
			return errors.ErrBidInFlight
		} else {
			delete(c.inflight, k)
		}
	}

	c.inflight[k] = &inflightBid{amount: amount, submittedAt: now}
	return nil
}

func (c *Coordinator) markPending(key models.ListingKey, bidder string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.inflight[inflightKey(key, bidder)]; ok {
		entry.pending = true
	}
}

// Resolve releases the in-flight slot. The reconciliation loop calls
// this when the matching BidPlaced event is applied; the submit path
// calls it on definite wallet failures.
func (c *Coordinator) Resolve(key models.ListingKey, bidder string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, inflightKey(key, bidder))
}

// InFlight reports whether a submission is currently guarded for the
// pair.
func (c *Coordinator) InFlight(key models.ListingKey, bidder string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[inflightKey(key, bidder)]
	return ok
}

// CreateListing brokers a fixed-price listing call after checking the
// one-active-listing rule.
func (c *Coordinator) CreateListing(ctx context.Context, seller string, key models.ListingKey, price int64) (*models.TxRequestResponse, error) {
	if listing, ok := c.store.GetListing(key); ok && listing.Status == models.ListingActive {
		return nil, errors.ErrListingExists
	}

	tx := ledger.ListItemFixedPriceTx(key, price)
	return c.forward(ctx, seller, tx)
}

// CreateAuction brokers an auction creation call.
func (c *Coordinator) CreateAuction(ctx context.Context, seller string, key models.ListingKey, startingPrice, reservePrice, durationSeconds, minBidIncrement int64) (*models.TxRequestResponse, error) {
	if listing, ok := c.store.GetListing(key); ok && listing.Status == models.ListingActive {
		return nil, errors.ErrListingExists
	}

	if minBidIncrement <= 0 {
		minBidIncrement = models.DefaultMinBidIncrement
	}

	tx := ledger.CreateAuctionTx(key, startingPrice, reservePrice, durationSeconds, minBidIncrement)
	return c.forward(ctx, seller, tx)
}

// SettleAuction brokers settlement for an ended auction. Settling an
// already-terminal auction is a safe no-op: no transaction goes out and
// the caller gets the terminal state back.
func (c *Coordinator) SettleAuction(ctx context.Context, account string, key models.ListingKey) (*models.TxRequestResponse, bool, error) {
	auction, ok := c.store.GetAuction(key)
	if !ok {
		return nil, false, errors.ErrNotFound
	}

	if auction.Terminal() {
		return nil, true, nil
	}

	if c.engine.EffectiveStatus(&auction, time.Now()) != models.AuctionEnded {
		return nil, false, errors.ErrAuctionNotEnded
	}

	tx := ledger.SettleAuctionTx(key)
	resp, err := c.forward(ctx, account, tx)
	return resp, false, err
}

// CancelAuction brokers cancellation of a bid-free auction. Cancelling
// an already-terminal auction is a no-op.
func (c *Coordinator) CancelAuction(ctx context.Context, account string, key models.ListingKey) (*models.TxRequestResponse, bool, error) {
	auction, ok := c.store.GetAuction(key)
	if !ok {
		return nil, false, errors.ErrNotFound
	}

	if auction.Terminal() {
		return nil, true, nil
	}

	if auction.BidCount > 0 {
		return nil, false, errors.ErrAuctionHasBids
	}

	tx := ledger.CancelAuctionTx(key)
	resp, err := c.forward(ctx, account, tx)
	return resp, false, err
}

func (c *Coordinator) forward(ctx context.Context, account string, tx *ledger.TxRequest) (*models.TxRequestResponse, error) {
	requestID := uuid.New().String()

	submitCtx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	_, err := c.wallet.Submit(submitCtx, &external.SubmitRequest{
		RequestID: requestID,
		Account:   account,
		Method:    tx.Method,
		Args:      tx.Args,
		Value:     tx.Value,
	})
	if err != nil {
		return nil, fmt.Errorf("transaction submission failed: %w", err)
	}

	return &models.TxRequestResponse{
		RequestID: requestID,
		Method:    tx.Method,
		Args:      tx.Args,
		Value:     tx.Value,
	}, nil
}

func reasonLabel(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrBidTooLow):
		return "bid_too_low"
	case stderrors.Is(err, errors.ErrAuctionNotActive):
		return "auction_not_active"
	case stderrors.Is(err, errors.ErrAuctionExpired):
		return "auction_expired"
	case stderrors.Is(err, errors.ErrInsufficientBalance):
		return "insufficient_balance"
	case stderrors.Is(err, errors.ErrBidInFlight):
		return "bid_in_flight"
	default:
		return "other"
	}
}
