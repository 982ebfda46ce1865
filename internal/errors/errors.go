package errors

import "errors"

// Transient ledger failures. Retried with backoff by the reconciliation
// loop, never surfaced through the query API.
var ErrLedgerUnavailable = errors.New("ledger unavailable")

// A single ledger event could not be parsed or applied. Logged and
// skipped; never halts reconciliation.
var ErrMalformedEvent = errors.New("malformed ledger event")

// Internal invariant violation detected during apply (e.g. a highest
// bid that decreased). Fatal for that one event, not for the process.
var ErrStoreInconsistent = errors.New("store inconsistent with ledger")

// Caller-correctable validation failures from the bid coordinator.
var (
	ErrBidTooLow           = errors.New("bid below minimum increment")
	ErrAuctionNotActive    = errors.New("auction is not active")
	ErrAuctionExpired      = errors.New("auction has expired")
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrBidInFlight         = errors.New("bid already in flight for this auction")
)

// Settlement requested while the auction window is still open.
var ErrAuctionNotEnded = errors.New("auction has not ended")

// Cancellation rejected because at least one bid exists. Permanent for
// that auction; bids cannot be retracted.
var ErrAuctionHasBids = errors.New("auction already has bids")

var ErrNotFound = errors.New("not found")

var ErrListingExists = errors.New("active listing already exists for token")
