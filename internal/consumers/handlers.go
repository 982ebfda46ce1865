package consumers

import (
	"context"
	"encoding/json"
	"log/slog"

	"chamber/internal/models"
	"chamber/internal/repository"

	"github.com/nats-io/stan.go"
)

type Handlers struct {
	repos *repository.Repositories
}

func NewHandlers(repos *repository.Repositories) *Handlers {
	return &Handlers{
		repos: repos,
	}
}

func (h *Handlers) HandleBidSubmitted(m *stan.Msg) {
	var event models.BidSubmittedEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		slog.Error("Failed to unmarshal bid submitted event", "error", err)
		return
	}

	slog.Info("Processing bid submitted event", "key", event.Key.String(), "bidder", event.Bidder, "amount", event.Amount)

	h.audit(models.SubjectBidSubmitted, event.Key, event.Bidder, event.Amount, m.Data)
	m.Ack()
}

func (h *Handlers) HandleBidConfirmed(m *stan.Msg) {
	var event models.BidConfirmedEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		slog.Error("Failed to unmarshal bid confirmed event", "error", err)
		return
	}

	slog.Info("Processing bid confirmed event", "key", event.Key.String(), "bidder", event.Bidder, "block", event.BlockNumber)

	h.audit(models.SubjectBidConfirmed, event.Key, event.Bidder, event.Amount, m.Data)
	m.Ack()
}

func (h *Handlers) HandleAuctionExtended(m *stan.Msg) {
	var event models.AuctionExtendedEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		slog.Error("Failed to unmarshal auction extended event", "error", err)
		return
	}

	slog.Info("Processing auction extended event", "key", event.Key.String(), "new_end_time", event.NewEndTime, "extension_count", event.ExtensionCount)

	h.audit(models.SubjectAuctionExtended, event.Key, "", 0, m.Data)
	m.Ack()
}

func (h *Handlers) HandleAuctionEnded(m *stan.Msg) {
	var event models.AuctionEndedEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		slog.Error("Failed to unmarshal auction ended event", "error", err)
		return
	}

	slog.Info("Processing auction ended event", "key", event.Key.String(), "highest_bidder", event.HighestBidder, "highest_bid", event.HighestBid)

	h.audit(models.SubjectAuctionEnded, event.Key, event.HighestBidder, event.HighestBid, m.Data)
	m.Ack()
}

func (h *Handlers) HandleAuctionSettled(m *stan.Msg) {
	var event models.AuctionSettledEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		slog.Error("Failed to unmarshal auction settled event", "error", err)
		return
	}

	slog.Info("Processing auction settled event", "key", event.Key.String(), "winner", event.Winner, "final_bid", event.FinalBid, "reserve_met", event.ReserveMet)

	h.audit(models.SubjectAuctionSettled, event.Key, event.Winner, event.FinalBid, m.Data)
	m.Ack()
}

func (h *Handlers) HandleAuctionCancelled(m *stan.Msg) {
	var event models.AuctionCancelledEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		slog.Error("Failed to unmarshal auction cancelled event", "error", err)
		return
	}

	slog.Info("Processing auction cancelled event", "key", event.Key.String(), "seller", event.Seller)

	h.audit(models.SubjectAuctionCancelled, event.Key, event.Seller, 0, m.Data)
	m.Ack()
}

func (h *Handlers) audit(subject string, key models.ListingKey, account string, amount int64, payload []byte) {
	ctx := context.Background()
	if err := h.repos.Audit.Insert(ctx, subject, key, account, amount, payload); err != nil {
		slog.Error("Failed to persist audit record", "subject", subject, "key", key.String(), "error", err)
	}
}
