package reconciler

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sort"
	"time"

	"chamber/internal/coordinator"
	"chamber/internal/errors"
	"chamber/internal/external"
	"chamber/internal/ledger"
	"chamber/internal/messaging"
	"chamber/internal/metrics"
	"chamber/internal/models"
	"chamber/internal/search"
	"chamber/internal/store"
)

// LedgerLog persists applied events and the poll cursor. Satisfied by
// repository.LedgerLogRepository.
type LedgerLog interface {
	LoadCursor(ctx context.Context) (string, error)
	Replay(ctx context.Context, fn func(models.LedgerEvent) error) error
	SaveBatch(ctx context.Context, events []models.LedgerEvent, cursor string) error
}

// Reconciler is the single writer of the store. It replays the
// persisted ledger log on startup, then polls the chain indexer and
// folds each batch into the store in (block, logIndex) order. Nothing
// else mutates marketplace state.
type Reconciler struct {
	ledger      *ledger.Client
	store       *store.Store
	coordinator *coordinator.Coordinator
	repo        LedgerLog
	nats        *messaging.NATSClient
	metadata    *external.MetadataClient
	search      *search.Client
	logger      *slog.Logger

	pollInterval time.Duration
	pollTimeout  time.Duration
	maxBackoff   time.Duration
}

func New(
	ledgerClient *ledger.Client,
	st *store.Store,
	coord *coordinator.Coordinator,
	repo LedgerLog,
	natsClient *messaging.NATSClient,
	metadataClient *external.MetadataClient,
	searchClient *search.Client,
	cfg ledger.Config,
	log *slog.Logger,
) *Reconciler {
	return &Reconciler{
		ledger:       ledgerClient,
		store:        st,
		coordinator:  coord,
		repo:         repo,
		nats:         natsClient,
		metadata:     metadataClient,
		search:       searchClient,
		logger:       log,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
		maxBackoff:   cfg.MaxBackoff,
	}
}

// Restore rebuilds the store from the persisted ledger log. Must run
// before the poll loop starts and before the API serves traffic.
func (r *Reconciler) Restore(ctx context.Context) (string, error) {
	cursor, err := r.repo.LoadCursor(ctx)
	if err != nil {
		return "", err
	}

	replayed := 0
	err = r.repo.Replay(ctx, func(event models.LedgerEvent) error {
		if _, applyErr := r.store.Apply(event); applyErr != nil {
			// Persisted events already passed validation once.
			r.logger.Error("Failed to replay persisted event", "event_id", event.ID(), "error", applyErr)
		}
		replayed++
		return nil
	})
	if err != nil {
		return "", err
	}

	r.logger.Info("Restored store from ledger log", "events", replayed, "cursor", cursor)
	return cursor, nil
}

// Run polls the ledger until ctx is cancelled. Poll failures back off
// exponentially without advancing the cursor, so no event is skipped
// during indexer outages.
func (r *Reconciler) Run(ctx context.Context, cursor string) {
	backoff := r.pollInterval

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reconciler stopped", "cursor", cursor)
			return
		case <-time.After(backoff):
		}

		newCursor, err := r.pollOnce(ctx, cursor)
		if err != nil {
			metrics.PollFailures.Inc()
			r.logger.Warn("Ledger poll failed", "cursor", cursor, "backoff", backoff, "error", err)
			backoff *= 2
			if backoff > r.maxBackoff {
				backoff = r.maxBackoff
			}
			continue
		}

		cursor = newCursor
		backoff = r.pollInterval
	}
}

func (r *Reconciler) pollOnce(ctx context.Context, cursor string) (string, error) {
	pollCtx, cancel := context.WithTimeout(ctx, r.pollTimeout)
	defer cancel()

	events, newCursor, err := r.ledger.Poll(pollCtx, cursor)
	if err != nil {
		return cursor, err
	}

	if len(events) == 0 {
		r.updateGauges()
		return newCursor, nil
	}

	// The indexer promises order but a restart mid-window can
	// interleave; sorting here keeps Apply's ordering contract cheap
	// to trust.
	sort.Slice(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})

	applied := make([]models.LedgerEvent, 0, len(events))
	for _, event := range events {
		result, applyErr := r.store.Apply(event)
		if applyErr != nil {
			r.recordSkip(event, applyErr)
			continue
		}

		applied = append(applied, event)
		if result.Duplicate {
			continue
		}

		metrics.EventsApplied.WithLabelValues(event.Kind).Inc()
		r.afterApply(ctx, event, result)
	}

	// Skipped events are deliberately excluded from the log: a replay
	// would hit the same validation failure.
	if err := r.repo.SaveBatch(ctx, applied, newCursor); err != nil {
		return cursor, err
	}

	r.updateGauges()
	return newCursor, nil
}

func (r *Reconciler) recordSkip(event models.LedgerEvent, err error) {
	reason := "malformed"
	if stderrors.Is(err, errors.ErrStoreInconsistent) {
		reason = "inconsistent"
		r.logger.Error("Ledger event contradicts mirrored state, operator attention needed",
			"event_id", event.ID(), "kind", event.Kind, "key", event.Key().String(), "error", err)
	} else {
		r.logger.Warn("Skipping malformed ledger event",
			"event_id", event.ID(), "kind", event.Kind, "error", err)
	}
	metrics.EventsSkipped.WithLabelValues(reason).Inc()
}

// afterApply handles the side effects of a freshly applied event:
// in-flight lock release, NATS notifications, metadata enrichment.
// All best-effort; the store commit already happened.
func (r *Reconciler) afterApply(ctx context.Context, event models.LedgerEvent, result store.ApplyResult) {
	switch event.Kind {
	case models.KindBidPlaced:
		r.coordinator.Resolve(event.Key(), event.Bidder)
		r.publish(models.SubjectBidConfirmed, models.BidConfirmedEvent{
			Key:         event.Key(),
			Bidder:      event.Bidder,
			Amount:      event.Amount,
			BlockNumber: event.BlockNumber,
			Timestamp:   time.Now(),
		})
		if result.Extended {
			extCount := 0
			if a, ok := r.store.GetAuction(event.Key()); ok {
				extCount = a.ExtensionCount
			}
			r.publish(models.SubjectAuctionExtended, models.AuctionExtendedEvent{
				Key:            event.Key(),
				NewEndTime:     result.NewEndTime,
				ExtensionCount: extCount,
				Timestamp:      time.Now(),
			})
		}
		r.reindex(ctx, event.Key())

	case models.KindAuctionCreated:
		r.enrich(ctx, event)

	case models.KindAuctionSettled:
		metrics.AuctionsSettled.Inc()
		r.publish(models.SubjectAuctionSettled, models.AuctionSettledEvent{
			Key:        event.Key(),
			Winner:     result.Winner,
			FinalBid:   result.FinalBid,
			ReserveMet: result.ReserveMet,
			Timestamp:  time.Now(),
		})
		r.reindex(ctx, event.Key())

	case models.KindAuctionCancelled:
		r.publish(models.SubjectAuctionCancelled, models.AuctionCancelledEvent{
			Key:       event.Key(),
			Seller:    event.Seller,
			Timestamp: time.Now(),
		})
		r.reindex(ctx, event.Key())
	}
}

// enrich fetches ticket metadata for a new auction and pushes the
// result into the store and the search index. Failures only cost
// search quality, never correctness.
func (r *Reconciler) enrich(ctx context.Context, event models.LedgerEvent) {
	title, venue, tier := "", "", ""
	if r.metadata != nil && event.TokenURI != "" {
		meta, err := r.metadata.Fetch(ctx, event.TokenURI)
		if err != nil {
			r.logger.Warn("Failed to fetch ticket metadata", "key", event.Key().String(), "error", err)
		} else {
			title, venue, tier = meta.Name, meta.Venue, meta.Tier
		}
	}
	if title != "" || venue != "" || tier != "" {
		r.store.SetAuctionMetadata(event.Key(), title, venue, tier)
	}
	r.reindex(ctx, event.Key())
}

func (r *Reconciler) reindex(ctx context.Context, key models.ListingKey) {
	if r.search == nil {
		return
	}
	auction, ok := r.store.GetAuction(key)
	if !ok {
		return
	}
	if err := r.search.IndexAuction(ctx, &auction); err != nil {
		r.logger.Warn("Failed to index auction", "key", key.String(), "error", err)
	}
}

func (r *Reconciler) publish(subject string, payload interface{}) {
	if err := r.nats.Publish(subject, payload); err != nil {
		r.logger.Warn("Failed to publish coordination event", "subject", subject, "error", err)
	}
}

func (r *Reconciler) updateGauges() {
	if last := r.store.LastEventTime(); !last.IsZero() {
		metrics.ReconcileLag.Set(time.Since(last).Seconds())
	}

	active := 0
	now := time.Now()
	for _, a := range r.store.Auctions() {
		if a.Status == models.AuctionActive && now.Before(a.EndTime) {
			active++
		}
	}
	metrics.ActiveAuctions.Set(float64(active))
}
