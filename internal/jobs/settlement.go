package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chamber/internal/coordinator"
	"chamber/internal/messaging"
	"chamber/internal/models"
	"chamber/internal/store"
)

// SettlementWatcher notices auctions whose end time has passed,
// publishes a single ended notification per auction, and (when
// enabled) brokers settlement automatically. Ending itself is lazy in
// the store; the watcher only makes the transition observable.
type SettlementWatcher struct {
	store       *store.Store
	coordinator *coordinator.Coordinator
	natsClient  *messaging.NATSClient
	interval    time.Duration
	autoSettle  bool

	// mu serializes scans: a slow auto-settle pass can outlive the
	// tick interval, and the next tick must not race it on the maps.
	mu        sync.Mutex
	announced map[string]struct{}
	settled   map[string]struct{}
	ticker    *time.Ticker
	done      chan bool
}

func NewSettlementWatcher(st *store.Store, coord *coordinator.Coordinator, natsClient *messaging.NATSClient, interval time.Duration, autoSettle bool) *SettlementWatcher {
	return &SettlementWatcher{
		store:       st,
		coordinator: coord,
		natsClient:  natsClient,
		interval:    interval,
		autoSettle:  autoSettle,
		announced:   make(map[string]struct{}),
		settled:     make(map[string]struct{}),
		done:        make(chan bool),
	}
}

// Start begins the background job that checks for ended auctions.
func (w *SettlementWatcher) Start(ctx context.Context) {
	slog.Info("Starting settlement watcher", "check_interval", w.interval.String(), "auto_settle", w.autoSettle)

	w.ticker = time.NewTicker(w.interval)

	// Run initial check immediately
	go w.checkEndedAuctions(ctx)

	go func() {
		for {
			select {
			case <-w.ticker.C:
				go w.checkEndedAuctions(ctx)
			case <-w.done:
				slog.Info("Settlement watcher stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the background job.
func (w *SettlementWatcher) Stop() {
	if w.ticker != nil {
		w.ticker.Stop()
	}
	close(w.done)
}

func (w *SettlementWatcher) checkEndedAuctions(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()

	for _, auction := range w.store.Auctions() {
		if auction.Status != models.AuctionActive || now.Before(auction.EndTime) {
			continue
		}

		key := auction.Key.String()
		if _, seen := w.announced[key]; !seen {
			w.announced[key] = struct{}{}

			slog.Info("Auction ended",
				"key", key,
				"highest_bid", auction.HighestBid,
				"highest_bidder", auction.HighestBidder,
				"bid_count", auction.BidCount)

			if err := w.natsClient.Publish(models.SubjectAuctionEnded, models.AuctionEndedEvent{
				Key:           auction.Key,
				HighestBid:    auction.HighestBid,
				HighestBidder: auction.HighestBidder,
				Timestamp:     now,
			}); err != nil {
				slog.Warn("Failed to publish auction ended event", "key", key, "error", err)
			}
		}

		if w.autoSettle {
			if _, done := w.settled[key]; done {
				continue
			}
			if err := w.settle(ctx, auction); err != nil {
				// Retry on the next tick.
				slog.Error("Failed to broker auto-settlement", "key", key, "error", err)
				continue
			}
			w.settled[key] = struct{}{}
		}
	}
}

func (w *SettlementWatcher) settle(ctx context.Context, auction models.Auction) error {
	_, alreadyTerminal, err := w.coordinator.SettleAuction(ctx, auction.Seller, auction.Key)
	if err != nil {
		return err
	}
	if !alreadyTerminal {
		slog.Info("Auto-settlement submitted", "key", auction.Key.String())
	}
	return nil
}
