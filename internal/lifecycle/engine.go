package lifecycle

import (
	"time"

	"chamber/internal/errors"
	"chamber/internal/models"
)

// Params tune the soft-close (anti-snipe) behavior.
type Params struct {
	SoftCloseWindow    time.Duration
	ExtensionIncrement time.Duration
	MaxExtensionCount  int
}

// DefaultParams mirror the marketplace contract's deployed values.
func DefaultParams() Params {
	return Params{
		SoftCloseWindow:    5 * time.Minute,
		ExtensionIncrement: 5 * time.Minute,
		MaxExtensionCount:  3,
	}
}

// Engine drives each auction through its state machine:
//
//	Active -> Active (bid, possibly extending the window)
//	Active -> Ended (time-based, detected lazily)
//	Ended  -> Settled (explicit settle)
//	Active|Ended -> Cancelled (only while bid-free)
//
// Settled and Cancelled are terminal; settle/cancel on a terminal
// auction is a no-op, never an error, so retries stay safe.
type Engine struct {
	params Params
}

func New(params Params) *Engine {
	if params.SoftCloseWindow <= 0 {
		params.SoftCloseWindow = DefaultParams().SoftCloseWindow
	}
	if params.ExtensionIncrement <= 0 {
		params.ExtensionIncrement = DefaultParams().ExtensionIncrement
	}
	if params.MaxExtensionCount <= 0 {
		params.MaxExtensionCount = DefaultParams().MaxExtensionCount
	}
	return &Engine{params: params}
}

func (e *Engine) Params() Params {
	return e.params
}

// EffectiveStatus resolves the time-based Active -> Ended transition.
// The stored status flips only when a settle lands on the ledger;
// readers always go through here.
func (e *Engine) EffectiveStatus(a *models.Auction, now time.Time) models.AuctionStatus {
	if a.Status == models.AuctionActive && !now.Before(a.EndTime) {
		return models.AuctionEnded
	}
	return a.Status
}

// ValidateBid checks a bid against the auction without mutating it.
// Checks run in the coordinator's fail-fast order: state, clock,
// increment. Equal-or-lower bids are rejected, never silently ignored,
// so ties cannot occur by construction.
func (e *Engine) ValidateBid(a *models.Auction, amount int64, now time.Time) error {
	switch e.EffectiveStatus(a, now) {
	case models.AuctionActive:
	case models.AuctionEnded:
		return errors.ErrAuctionExpired
	default:
		return errors.ErrAuctionNotActive
	}

	if now.Before(a.StartTime) {
		return errors.ErrAuctionNotActive
	}

	if amount < a.MinAcceptableBid() {
		return errors.ErrBidTooLow
	}

	return nil
}

// BidOutcome reports what a bid did to the auction.
type BidOutcome struct {
	Extended   bool
	NewEndTime time.Time
}

// ApplyBid records a valid bid on the auction. Near the deadline the
// end time moves to now+ExtensionIncrement (never backwards), capped at
// MaxExtensionCount extensions; late bids past the cap are still
// accepted but no longer stretch the window.
func (e *Engine) ApplyBid(a *models.Auction, bidder string, amount int64, now time.Time) (BidOutcome, error) {
	if err := e.ValidateBid(a, amount, now); err != nil {
		return BidOutcome{}, err
	}

	a.HighestBid = amount
	a.HighestBidder = bidder
	a.BidCount++
	a.ReserveMet = a.ReservePrice == 0 || a.HighestBid >= a.ReservePrice

	outcome := BidOutcome{NewEndTime: a.EndTime}

	if a.EndTime.Sub(now) < e.params.SoftCloseWindow && a.ExtensionCount < e.params.MaxExtensionCount {
		extended := now.Add(e.params.ExtensionIncrement)
		if extended.After(a.EndTime) {
			a.EndTime = extended
			a.ExtensionCount++
			outcome.Extended = true
			outcome.NewEndTime = extended
		}
	}

	return outcome, nil
}

// Settle moves an ended auction to Settled. Whether the reserve was met
// is recorded on the auction; a reserve-not-met auction still settles,
// just with no sale. Returns changed=false for terminal auctions.
func (e *Engine) Settle(a *models.Auction, now time.Time) (bool, error) {
	if a.Terminal() {
		return false, nil
	}

	if e.EffectiveStatus(a, now) != models.AuctionEnded {
		return false, errors.ErrAuctionNotEnded
	}

	a.Status = models.AuctionSettled
	a.ReserveMet = a.BidCount > 0 && a.HighestBidder != "" && a.HighestBid >= a.ReservePrice
	settledAt := now
	a.SettledAt = &settledAt

	return true, nil
}

// Cancel moves a bid-free auction to Cancelled. Once any bid exists the
// cancellation is rejected; bids cannot be retracted. Returns
// changed=false for terminal auctions.
func (e *Engine) Cancel(a *models.Auction) (bool, error) {
	if a.Terminal() {
		return false, nil
	}

	if a.BidCount > 0 {
		return false, errors.ErrAuctionHasBids
	}

	a.Status = models.AuctionCancelled
	return true, nil
}
