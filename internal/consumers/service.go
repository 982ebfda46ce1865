package consumers

import (
	"context"
	"log/slog"

	"chamber/internal/config"
	"chamber/internal/database"
	"chamber/internal/messaging"
	"chamber/internal/models"
	"chamber/internal/repository"
)

// ConsumerService persists the coordination events published by the
// API process into a durable audit trail. It runs as its own binary so
// the trail survives API restarts.
type ConsumerService struct {
	db       *database.DB
	nats     *messaging.NATSClient
	repos    *repository.Repositories
	handlers *Handlers
}

func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	// Connect to database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := db.RunMigrations(); err != nil {
		return nil, err
	}

	// Connect to NATS
	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		return nil, err
	}

	// Create repositories
	repos := repository.NewRepositories(db)

	// Create handlers
	handlers := NewHandlers(repos)

	return &ConsumerService{
		db:       db,
		nats:     natsClient,
		repos:    repos,
		handlers: handlers,
	}, nil
}

func (cs *ConsumerService) Start() error {
	slog.Info("Starting NATS consumers...")

	// Subscribe to bid coordination events
	_, err := cs.nats.SubscribeQueue(models.SubjectBidSubmitted, "consumers", cs.handlers.HandleBidSubmitted)
	if err != nil {
		return err
	}

	_, err = cs.nats.SubscribeQueue(models.SubjectBidConfirmed, "consumers", cs.handlers.HandleBidConfirmed)
	if err != nil {
		return err
	}

	// Subscribe to auction lifecycle events
	_, err = cs.nats.SubscribeQueue(models.SubjectAuctionExtended, "consumers", cs.handlers.HandleAuctionExtended)
	if err != nil {
		return err
	}

	_, err = cs.nats.SubscribeQueue(models.SubjectAuctionEnded, "consumers", cs.handlers.HandleAuctionEnded)
	if err != nil {
		return err
	}

	_, err = cs.nats.SubscribeQueue(models.SubjectAuctionSettled, "consumers", cs.handlers.HandleAuctionSettled)
	if err != nil {
		return err
	}

	_, err = cs.nats.SubscribeQueue(models.SubjectAuctionCancelled, "consumers", cs.handlers.HandleAuctionCancelled)
	if err != nil {
		return err
	}

	slog.Info("All consumers started successfully")
	return nil
}

func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down consumer service...")

	if cs.nats != nil {
		if err := cs.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}

	if cs.db != nil {
		if err := cs.db.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
