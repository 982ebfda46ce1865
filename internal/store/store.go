package store

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"chamber/internal/errors"
	"chamber/internal/lifecycle"
	"chamber/internal/models"
)

// Store is the authoritative off-chain mirror of marketplace state,
// built by applying ledger events in (block, logIndex) order. A single
// writer (the reconciliation loop) mutates it; all other components
// read consistent copies under the read lock.
type Store struct {
	mu     sync.RWMutex
	engine *lifecycle.Engine

	listings map[string]*models.Listing
	auctions map[string]*models.Auction
	bids     map[string][]models.Bid
	balances map[string]*models.UserBalance
	owners   map[string]string

	// Replay guard: ids of every event ever applied or skipped as a
	// duplicate, keyed block:logIndex.
	applied map[string]struct{}

	lastEventTime time.Time
}

func New(engine *lifecycle.Engine) *Store {
	return &Store{
		engine:   engine,
		listings: make(map[string]*models.Listing),
		auctions: make(map[string]*models.Auction),
		bids:     make(map[string][]models.Bid),
		balances: make(map[string]*models.UserBalance),
		owners:   make(map[string]string),
		applied:  make(map[string]struct{}),
	}
}

func balanceKey(account, eventAddress string) string {
	return account + "|" + eventAddress
}

// ApplyResult reports the externally interesting effects of one apply,
// so the reconciliation loop can publish notifications.
type ApplyResult struct {
	Applied    bool
	Duplicate  bool
	Extended   bool
	NewEndTime time.Time
	Winner     string
	FinalBid   int64
	ReserveMet bool
}

// Apply folds one ledger event into the mirror. Idempotent: a replayed
// event is recognized by its (block, logIndex) id and skipped without
// touching state. Shape problems return ErrMalformedEvent; invariant
// violations return ErrStoreInconsistent. In both cases the event
// leaves no partial writes behind.
func (s *Store) Apply(event models.LedgerEvent) (ApplyResult, error) {
	if err := validateShape(&event); err != nil {
		return ApplyResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.applied[event.ID()]; dup {
		return ApplyResult{Duplicate: true}, nil
	}

	var (
		result ApplyResult
		err    error
	)

	switch event.Kind {
	case models.KindListingCreated:
		err = s.applyListingCreated(&event)
	case models.KindAuctionCreated:
		err = s.applyAuctionCreated(&event)
	case models.KindBidPlaced:
		result, err = s.applyBidPlaced(&event)
	case models.KindAuctionSettled:
		result, err = s.applyAuctionSettled(&event)
	case models.KindAuctionCancelled:
		err = s.applyAuctionCancelled(&event)
	case models.KindListingCancelled:
		err = s.applyListingCancelled(&event)
	case models.KindItemSold:
		err = s.applyItemSold(&event)
	case models.KindOwnershipTransferred:
		s.owners[event.Key().String()] = event.To
	case models.KindFundsDeposited:
		s.applyDeposit(&event)
	case models.KindFundsWithdrawn:
		err = s.applyWithdrawal(&event)
	case models.KindProfitsCollected:
		err = s.applyProfitsCollected(&event)
	}

	if err != nil {
		return ApplyResult{}, err
	}

	s.applied[event.ID()] = struct{}{}
	if event.Timestamp.After(s.lastEventTime) {
		s.lastEventTime = event.Timestamp
	}
	result.Applied = true
	return result, nil
}

func validateShape(e *models.LedgerEvent) error {
	switch e.Kind {
	case models.KindListingCreated, models.KindAuctionCreated, models.KindBidPlaced,
		models.KindAuctionSettled, models.KindAuctionCancelled, models.KindListingCancelled,
		models.KindItemSold, models.KindOwnershipTransferred:
		if e.EventAddress == "" || e.TokenID <= 0 {
			return fmt.Errorf("%w: kind %s missing listing key", errors.ErrMalformedEvent, e.Kind)
		}
	case models.KindFundsDeposited, models.KindFundsWithdrawn, models.KindProfitsCollected:
		if e.EventAddress == "" || e.Account == "" {
			return fmt.Errorf("%w: kind %s missing account", errors.ErrMalformedEvent, e.Kind)
		}
		if e.Amount <= 0 {
			return fmt.Errorf("%w: kind %s non-positive amount", errors.ErrMalformedEvent, e.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", errors.ErrMalformedEvent, e.Kind)
	}

	if e.Kind == models.KindBidPlaced && (e.Bidder == "" || e.Amount <= 0) {
		return fmt.Errorf("%w: bid missing bidder or amount", errors.ErrMalformedEvent)
	}

	return nil
}

func (s *Store) applyListingCreated(e *models.LedgerEvent) error {
	key := e.Key().String()
	if existing, ok := s.listings[key]; ok && existing.Status == models.ListingActive {
		return fmt.Errorf("%w: second active listing for %s", errors.ErrStoreInconsistent, key)
	}

	s.listings[key] = &models.Listing{
		Key:      e.Key(),
		Seller:   e.Seller,
		Price:    e.Price,
		SaleType: models.SaleFixedPrice,
		Status:   models.ListingActive,
		ListedAt: e.Timestamp,
	}
	return nil
}

func (s *Store) applyAuctionCreated(e *models.LedgerEvent) error {
	key := e.Key().String()
	if existing, ok := s.listings[key]; ok && existing.Status == models.ListingActive {
		return fmt.Errorf("%w: second active listing for %s", errors.ErrStoreInconsistent, key)
	}

	s.listings[key] = &models.Listing{
		Key:      e.Key(),
		Seller:   e.Seller,
		Price:    e.StartingPrice,
		SaleType: models.SaleAuction,
		Status:   models.ListingActive,
		ListedAt: e.Timestamp,
	}

	s.auctions[key] = &models.Auction{
		Key:             e.Key(),
		Seller:          e.Seller,
		StartTime:       e.Timestamp,
		EndTime:         e.Timestamp.Add(time.Duration(e.DurationSeconds) * time.Second),
		StartingPrice:   e.StartingPrice,
		ReservePrice:    e.ReservePrice,
		MinBidIncrement: e.MinBidIncrement,
		Status:          models.AuctionActive,
	}
	return nil
}

func (s *Store) applyBidPlaced(e *models.LedgerEvent) (ApplyResult, error) {
	key := e.Key().String()
	auction, ok := s.auctions[key]
	if !ok {
		return ApplyResult{}, fmt.Errorf("%w: bid for unknown auction %s", errors.ErrStoreInconsistent, key)
	}

	// The ledger is authoritative, but a highest bid may never go
	// backwards; a lower amount here means the mirror diverged.
	if e.Amount <= auction.HighestBid {
		return ApplyResult{}, fmt.Errorf("%w: highest bid would decrease for %s (%d -> %d)",
			errors.ErrStoreInconsistent, key, auction.HighestBid, e.Amount)
	}
	if auction.Terminal() {
		return ApplyResult{}, fmt.Errorf("%w: bid on terminal auction %s", errors.ErrStoreInconsistent, key)
	}

	// Mutate a scratch copy first so a failed escrow adjustment leaves
	// nothing behind.
	updated := *auction
	prevBidder := auction.HighestBidder
	prevBid := auction.HighestBid

	outcome, err := s.engine.ApplyBid(&updated, e.Bidder, e.Amount, e.Timestamp)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("%w: ledger bid rejected locally for %s: %v",
			errors.ErrStoreInconsistent, key, err)
	}

	adjusted, err := s.lockEscrowForBid(e, prevBidder, prevBid)
	if err != nil {
		return ApplyResult{}, err
	}

	*auction = updated
	for k, b := range adjusted {
		s.balances[k] = b
	}
	s.bids[key] = append(s.bids[key], models.Bid{
		Key:         e.Key(),
		Bidder:      e.Bidder,
		Amount:      e.Amount,
		SubmittedAt: e.Timestamp,
		BlockNumber: e.BlockNumber,
		LogIndex:    e.LogIndex,
	})

	return ApplyResult{Extended: outcome.Extended, NewEndTime: auction.EndTime}, nil
}

// lockEscrowForBid computes the balance mutations a confirmed bid
// implies: the previous leader's lock is released, the new leader's
// amount (or delta, when outbidding themselves) moves available ->
// locked. Accounts with no mirrored deposit history are left alone.
// Returns replacement records without committing them.
func (s *Store) lockEscrowForBid(e *models.LedgerEvent, prevBidder string, prevBid int64) (map[string]*models.UserBalance, error) {
	adjusted := make(map[string]*models.UserBalance)

	if prevBidder != "" && prevBidder != e.Bidder {
		if prev, ok := s.balances[balanceKey(prevBidder, e.EventAddress)]; ok {
			released := *prev
			released.Locked -= prevBid
			released.Available += prevBid
			if !released.Consistent() {
				return nil, fmt.Errorf("%w: releasing outbid escrow for %s would break accounting",
					errors.ErrStoreInconsistent, prevBidder)
			}
			adjusted[balanceKey(prevBidder, e.EventAddress)] = &released
		}
	}

	if bal, ok := s.balances[balanceKey(e.Bidder, e.EventAddress)]; ok {
		delta := e.Amount
		if prevBidder == e.Bidder {
			delta = e.Amount - prevBid
		}
		locked := *bal
		locked.Available -= delta
		locked.Locked += delta
		if !locked.Consistent() {
			return nil, fmt.Errorf("%w: locking escrow for %s would break accounting",
				errors.ErrStoreInconsistent, e.Bidder)
		}
		adjusted[balanceKey(e.Bidder, e.EventAddress)] = &locked
	}

	return adjusted, nil
}

func (s *Store) applyAuctionSettled(e *models.LedgerEvent) (ApplyResult, error) {
	key := e.Key().String()
	auction, ok := s.auctions[key]
	if !ok {
		return ApplyResult{}, fmt.Errorf("%w: settle for unknown auction %s", errors.ErrStoreInconsistent, key)
	}

	updated := *auction
	changed, err := s.engine.Settle(&updated, e.Timestamp)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("%w: ledger settle rejected locally for %s: %v",
			errors.ErrStoreInconsistent, key, err)
	}
	if !changed {
		// Terminal already; replaying a settle is a no-op with no
		// duplicate payout.
		return ApplyResult{Winner: auction.HighestBidder, FinalBid: auction.HighestBid, ReserveMet: auction.ReserveMet}, nil
	}

	if updated.ReserveMet {
		if err := s.payOutSale(e.EventAddress, updated.HighestBidder, updated.Seller, updated.HighestBid); err != nil {
			return ApplyResult{}, err
		}
		s.owners[key] = updated.HighestBidder
		if listing, ok := s.listings[key]; ok {
			listing.Status = models.ListingSold
		}
	} else {
		if listing, ok := s.listings[key]; ok {
			listing.Status = models.ListingCancelled
		}
		// Reserve not met: the leader's lock flows back to available.
		if updated.HighestBidder != "" {
			if bal, ok := s.balances[balanceKey(updated.HighestBidder, e.EventAddress)]; ok {
				bal.Locked -= updated.HighestBid
				bal.Available += updated.HighestBid
			}
		}
	}

	*auction = updated
	return ApplyResult{Winner: updated.HighestBidder, FinalBid: updated.HighestBid, ReserveMet: updated.ReserveMet}, nil
}

// payOutSale moves the winning amount out of the buyer's escrow and
// credits the seller's collectable profits.
func (s *Store) payOutSale(eventAddress, buyer, seller string, amount int64) error {
	if buyer != "" {
		if bal, ok := s.balances[balanceKey(buyer, eventAddress)]; ok {
			paid := *bal
			paid.Locked -= amount
			paid.TotalDeposited -= amount
			if !paid.Consistent() {
				return fmt.Errorf("%w: payout for %s would break accounting", errors.ErrStoreInconsistent, buyer)
			}
			*bal = paid
		}
	}

	if seller != "" {
		bal, ok := s.balances[balanceKey(seller, eventAddress)]
		if !ok {
			bal = &models.UserBalance{Account: seller, EventAddress: eventAddress}
			s.balances[balanceKey(seller, eventAddress)] = bal
		}
		bal.Profits += amount
	}

	return nil
}

func (s *Store) applyAuctionCancelled(e *models.LedgerEvent) error {
	key := e.Key().String()
	auction, ok := s.auctions[key]
	if !ok {
		return fmt.Errorf("%w: cancel for unknown auction %s", errors.ErrStoreInconsistent, key)
	}

	updated := *auction
	changed, err := s.engine.Cancel(&updated)
	if err != nil {
		return fmt.Errorf("%w: ledger cancel rejected locally for %s: %v", errors.ErrStoreInconsistent, key, err)
	}
	if !changed {
		return nil
	}

	*auction = updated
	if listing, ok := s.listings[key]; ok {
		listing.Status = models.ListingCancelled
	}
	return nil
}

func (s *Store) applyListingCancelled(e *models.LedgerEvent) error {
	key := e.Key().String()
	listing, ok := s.listings[key]
	if !ok {
		return fmt.Errorf("%w: cancel for unknown listing %s", errors.ErrStoreInconsistent, key)
	}
	if listing.Status == models.ListingActive {
		listing.Status = models.ListingCancelled
	}
	return nil
}

func (s *Store) applyItemSold(e *models.LedgerEvent) error {
	key := e.Key().String()
	listing, ok := s.listings[key]
	if !ok {
		return fmt.Errorf("%w: sale for unknown listing %s", errors.ErrStoreInconsistent, key)
	}
	if listing.Status != models.ListingActive {
		// Replayed or late sale on a settled listing; nothing to do.
		return nil
	}

	price := e.Amount
	if price == 0 {
		price = listing.Price
	}

	buyer := e.To
	if buyer != "" {
		if bal, ok := s.balances[balanceKey(buyer, e.EventAddress)]; ok {
			paid := *bal
			paid.Available -= price
			paid.TotalDeposited -= price
			if !paid.Consistent() {
				return fmt.Errorf("%w: purchase by %s would break accounting", errors.ErrStoreInconsistent, buyer)
			}
			*bal = paid
		}
		s.owners[key] = buyer
	}

	if listing.Seller != "" {
		bal, ok := s.balances[balanceKey(listing.Seller, e.EventAddress)]
		if !ok {
			bal = &models.UserBalance{Account: listing.Seller, EventAddress: e.EventAddress}
			s.balances[balanceKey(listing.Seller, e.EventAddress)] = bal
		}
		bal.Profits += price
	}

	listing.Status = models.ListingSold
	return nil
}

func (s *Store) applyDeposit(e *models.LedgerEvent) {
	key := balanceKey(e.Account, e.EventAddress)
	bal, ok := s.balances[key]
	if !ok {
		bal = &models.UserBalance{Account: e.Account, EventAddress: e.EventAddress}
		s.balances[key] = bal
	}
	bal.TotalDeposited += e.Amount
	bal.Available += e.Amount
}

func (s *Store) applyWithdrawal(e *models.LedgerEvent) error {
	bal, ok := s.balances[balanceKey(e.Account, e.EventAddress)]
	if !ok {
		return fmt.Errorf("%w: withdrawal from unknown balance %s", errors.ErrStoreInconsistent, e.Account)
	}

	updated := *bal
	updated.Available -= e.Amount
	updated.TotalWithdrawn += e.Amount
	if !updated.Consistent() {
		return fmt.Errorf("%w: withdrawal by %s would break accounting", errors.ErrStoreInconsistent, e.Account)
	}

	*bal = updated
	return nil
}

func (s *Store) applyProfitsCollected(e *models.LedgerEvent) error {
	bal, ok := s.balances[balanceKey(e.Account, e.EventAddress)]
	if !ok || bal.Profits < e.Amount {
		return fmt.Errorf("%w: profit collection by %s exceeds mirror", errors.ErrStoreInconsistent, e.Account)
	}

	bal.Profits -= e.Amount
	return nil
}

// SetAuctionMetadata attaches blob-store metadata to an auction. Called
// by the enrichment path, which runs on the reconciliation goroutine.
func (s *Store) SetAuctionMetadata(key models.ListingKey, title, venue, tier string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if auction, ok := s.auctions[key.String()]; ok {
		auction.Title = title
		auction.Venue = venue
		auction.Tier = tier
	}
}

// GetListing returns a copy of the listing for key.
func (s *Store) GetListing(key models.ListingKey) (models.Listing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listing, ok := s.listings[key.String()]
	if !ok {
		return models.Listing{}, false
	}
	return *listing, true
}

// GetAuction returns a copy of the auction for key.
func (s *Store) GetAuction(key models.ListingKey) (models.Auction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	auction, ok := s.auctions[key.String()]
	if !ok {
		return models.Auction{}, false
	}
	return *auction, true
}

// GetBalance returns a copy of the escrow mirror for an account on one
// event contract. A missing record reads as all zeros.
func (s *Store) GetBalance(account, eventAddress string) models.UserBalance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if bal, ok := s.balances[balanceKey(account, eventAddress)]; ok {
		return *bal
	}
	return models.UserBalance{Account: account, EventAddress: eventAddress}
}

// GetOwner returns the last observed owner of the token.
func (s *Store) GetOwner(key models.ListingKey) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.owners[key.String()]
	return owner, ok
}

// Auctions returns copies of every auction, unordered.
func (s *Store) Auctions() []models.Auction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		result = append(result, *a)
	}
	return result
}

// Listings returns copies of every listing, unordered.
func (s *Store) Listings() []models.Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		result = append(result, *l)
	}
	return result
}

// Bids returns the accepted bid history for one auction in ledger order.
func (s *Store) Bids(key models.ListingKey) []models.Bid {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.bids[key.String()]
	result := make([]models.Bid, len(history))
	copy(result, history)
	return result
}

// LastEventTime reports the timestamp of the newest applied event, for
// the reconcile-lag gauge.
func (s *Store) LastEventTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastEventTime
}

// AppliedCount reports how many distinct events have been applied.
func (s *Store) AppliedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.applied)
}

// HasBidAtLeast reports whether the auction already records a bid from
// bidder at or above amount. The coordinator uses this to recognize a
// timed-out submission that actually landed.
func (s *Store) HasBidAtLeast(key models.ListingKey, bidder string, amount int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.bids[key.String()] {
		if strings.EqualFold(b.Bidder, bidder) && b.Amount >= amount {
			return true
		}
	}
	return false
}
