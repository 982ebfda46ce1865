package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_events_applied_total",
			Help: "Ledger events applied to the store, by kind",
		},
		[]string{"kind"},
	)

	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_events_skipped_total",
			Help: "Ledger events skipped during apply",
		},
		[]string{"reason"},
	)

	PollFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_poll_failures_total",
			Help: "Failed ledger poll calls",
		},
	)

	ReconcileLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconcile_lag_seconds",
			Help: "Age of the newest applied ledger event",
		},
	)

	BidsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bids_accepted_total",
			Help: "Bid submissions accepted by the coordinator",
		},
	)

	BidsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bids_rejected_total",
			Help: "Bid submissions rejected by the coordinator, by reason",
		},
		[]string{"reason"},
	)

	AuctionsSettled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auctions_settled_total",
			Help: "Auctions observed settling on the ledger",
		},
	)

	ActiveAuctions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_auctions_total",
			Help: "Auctions currently active in the store",
		},
	)
)
