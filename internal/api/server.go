package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"chamber/internal/cache"
	"chamber/internal/config"
	"chamber/internal/coordinator"
	"chamber/internal/database"
	"chamber/internal/external"
	"chamber/internal/handlers"
	"chamber/internal/jobs"
	"chamber/internal/ledger"
	"chamber/internal/lifecycle"
	"chamber/internal/logger"
	"chamber/internal/messaging"
	"chamber/internal/middleware"
	"chamber/internal/query"
	"chamber/internal/reconciler"
	"chamber/internal/repository"
	"chamber/internal/search"
	"chamber/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wires the HTTP surface together with the reconciliation loop
// that keeps its in-memory store current. Both live in one process:
// the store is not shared across instances.
type Server struct {
	router      *gin.Engine
	config      *config.Config
	db          *database.DB
	nats        *messaging.NATSClient
	store       *store.Store
	coordinator *coordinator.Coordinator
	facade      *query.Facade
	reconciler  *reconciler.Reconciler
	watcher     *jobs.SettlementWatcher
	redisClient *cache.Client

	cancelReconciler context.CancelFunc
}

// NewServer builds the full dependency graph from configuration.
func NewServer(cfg *config.Config) *Server {
	gin.SetMode(cfg.GinMode)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.RunMigrations(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		// Coordination events are best-effort; the mirror stays
		// correct without them.
		logger.Get().Warn("NATS unavailable, coordination events disabled", "error", err)
		natsClient = messaging.Noop()
	}

	var searchClient *search.Client
	if cfg.Elasticsearch.Enabled {
		searchClient, err = search.NewClient(cfg.Elasticsearch)
		if err != nil {
			logger.Get().Warn("Elasticsearch unavailable, free-text search degraded", "error", err)
			searchClient = nil
		}
	}

	redisClient, err := cache.NewClient()
	if err != nil {
		logger.Get().Warn("Redis unavailable, list caching disabled", "error", err)
		redisClient = nil
	}

	repos := repository.NewRepositories(db)
	engine := lifecycle.New(cfg.Lifecycle)
	st := store.New(engine)
	walletClient := external.NewWalletClient(cfg.Wallet)
	metadataClient := external.NewMetadataClient(cfg.Metadata)
	ledgerClient := ledger.NewClient(cfg.Ledger)

	coord := coordinator.New(st, engine, walletClient, natsClient, cfg.SubmitTimeout, cfg.PendingGrace)
	facade := query.New(st, engine, searchClient)
	rec := reconciler.New(ledgerClient, st, coord, repos.LedgerLog, natsClient, metadataClient, searchClient, cfg.Ledger, logger.Get())
	watcher := jobs.NewSettlementWatcher(st, coord, natsClient, cfg.SettleCheckInterval, cfg.AutoSettle)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())

	server := &Server{
		router:      router,
		config:      cfg,
		db:          db,
		nats:        natsClient,
		store:       st,
		coordinator: coord,
		facade:      facade,
		reconciler:  rec,
		watcher:     watcher,
		redisClient: redisClient,
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	h := handlers.NewHandlers(s.coordinator, s.facade, s.redisClient)

	api := s.router.Group("/api")
	{
		// Read endpoints are open
		auctions := api.Group("/auctions")
		{
			auctions.GET("", h.ListAuctions)
			auctions.GET("/:eventAddress/:tokenId", h.GetAuction)
		}

		api.GET("/listings", h.ListListings)
		api.GET("/balances/:account/:eventAddress", h.GetUserBalance)

		// Write endpoints need a wallet identity
		writes := api.Group("")
		writes.Use(middleware.WalletAuth())
		{
			writes.POST("/listings", h.CreateListing)
			writes.POST("/auctions", h.CreateAuction)
			writes.POST("/bids", h.PlaceBid)
			writes.POST("/auctions/:eventAddress/:tokenId/settle", h.SettleAuction)
			writes.POST("/auctions/:eventAddress/:tokenId/cancel", h.CancelAuction)
		}
	}

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) healthCheck(c *gin.Context) {
	lag := time.Duration(0)
	if last := s.store.LastEventTime(); !last.IsZero() {
		lag = time.Since(last)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"service":        "chamber-api",
		"version":        "1.0.0",
		"applied_events": s.store.AppliedCount(),
		"reconcile_lag":  lag.String(),
	})
}

// Start restores the store from the persisted ledger log and launches
// the reconciliation loop and settlement watcher. Must be called
// before serving traffic: until restore finishes the mirror is empty.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelReconciler = cancel

	cursor, err := s.reconciler.Restore(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to restore store from ledger log: %w", err)
	}

	go s.reconciler.Run(ctx, cursor)
	s.watcher.Start(ctx)

	return nil
}

// Run starts background work and serves HTTP.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	addr := fmt.Sprintf(":%s", s.config.Port)
	return s.router.Run(addr)
}

// GetRouter exposes the router for tests.
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Cleanup stops background work and closes connections.
func (s *Server) Cleanup() error {
	if s.cancelReconciler != nil {
		s.cancelReconciler()
	}
	if s.watcher != nil {
		s.watcher.Stop()
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Printf("Error closing Redis connection: %v", err)
		}
	}

	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			log.Printf("Error closing NATS connection: %v", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Printf("Error closing database connection: %v", err)
			return err
		}
	}

	return nil
}
