package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"chamber/internal/models"

	"github.com/gin-gonic/gin"
)

var (
	port         = flag.String("port", "8545", "Port to serve the fake ledger RPC on")
	seed         = flag.Int64("seed", 42, "Random seed for the generated event stream")
	auctionCount = flag.Int("auctions", 5, "Number of auctions to script")
	bidders      = flag.Int("bidders", 8, "Number of bidder accounts")
	duration     = flag.Int("duration", 600, "Auction duration in seconds")
	blockTime    = flag.Duration("block-time", 2*time.Second, "Interval between generated blocks")
)

// ledgerSim scripts a deterministic marketplace: deposits, auction
// creation, then a trickle of bids. It stands in for the chain indexer
// during local development, answering the same RPC the real one does.
type ledgerSim struct {
	mu     sync.Mutex
	rng    *rand.Rand
	events []models.LedgerEvent

	block    uint64
	logIndex uint32
	started  time.Time
}

const eventAddress = "0xe0e0a7c2e1d9f3b643a26fd9f337740b2f4ce26a"

func main() {
	flag.Parse()

	slog.Info("Starting fake ledger RPC", "port", *port, "seed", *seed, "auctions", *auctionCount)

	sim := &ledgerSim{
		rng:     rand.New(rand.NewSource(*seed)),
		block:   100,
		started: time.Now(),
	}
	sim.scriptOpening()

	go sim.tick()

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	router.POST("/", sim.handleRPC)

	if err := router.Run(":" + *port); err != nil {
		slog.Error("Fake ledger RPC stopped", "error", err)
	}
}

func (s *ledgerSim) account(i int) string {
	return fmt.Sprintf("0xbidder%040d", i)
}

func (s *ledgerSim) seller(i int) string {
	return fmt.Sprintf("0xseller%040d", i)
}

func (s *ledgerSim) next() (uint64, uint32) {
	s.logIndex++
	if s.logIndex >= 20 {
		s.block++
		s.logIndex = 0
	}
	return s.block, s.logIndex
}

func (s *ledgerSim) emit(e models.LedgerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.BlockNumber, e.LogIndex = s.next()
	e.Timestamp = time.Now()
	s.events = append(s.events, e)
}

// scriptOpening seeds deposits for every bidder and creates the
// scripted auctions, so the service has state to mirror immediately.
func (s *ledgerSim) scriptOpening() {
	const avax = int64(1_000_000_000)

	for i := 0; i < *bidders; i++ {
		s.emit(models.LedgerEvent{
			Kind:         models.KindFundsDeposited,
			EventAddress: eventAddress,
			Account:      s.account(i),
			Amount:       int64(10+s.rng.Intn(90)) * avax,
		})
	}

	for i := 0; i < *auctionCount; i++ {
		starting := int64(1+s.rng.Intn(5)) * avax
		s.emit(models.LedgerEvent{
			Kind:            models.KindAuctionCreated,
			EventAddress:    eventAddress,
			TokenID:         int64(i + 1),
			Seller:          s.seller(i),
			StartingPrice:   starting,
			ReservePrice:    starting * 2,
			MinBidIncrement: models.DefaultMinBidIncrement,
			DurationSeconds: int64(*duration),
			TokenURI:        fmt.Sprintf("ipfs://QmTicket%d", i+1),
		})
	}
}

// tick trickles bids onto random auctions, one block at a time.
func (s *ledgerSim) tick() {
	ticker := time.NewTicker(*blockTime)
	defer ticker.Stop()

	highest := make(map[int64]int64)

	for range ticker.C {
		if time.Since(s.started) > time.Duration(*duration)*time.Second {
			return
		}

		tokenID := int64(1 + s.rng.Intn(*auctionCount))
		bid := highest[tokenID] + models.DefaultMinBidIncrement*int64(1+s.rng.Intn(10))
		if bid < 1_000_000_000 {
			bid = 1_000_000_000
		}
		highest[tokenID] = bid

		s.emit(models.LedgerEvent{
			Kind:         models.KindBidPlaced,
			EventAddress: eventAddress,
			TokenID:      tokenID,
			Bidder:       s.account(s.rng.Intn(*bidders)),
			Amount:       bid,
		})
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  struct {
		Cursor string `json:"cursor"`
		Limit  int    `json:"limit"`
	} `json:"params"`
}

func (s *ledgerSim) handleRPC(c *gin.Context) {
	var req rpcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Method != "marketplace_getEvents" {
		c.JSON(http.StatusOK, gin.H{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   gin.H{"code": -32601, "message": "method not found"},
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	offset := 0
	if req.Params.Cursor != "" {
		parsed, err := strconv.Atoi(req.Params.Cursor)
		if err != nil || parsed < 0 || parsed > len(s.events) {
			c.JSON(http.StatusOK, gin.H{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"error":   gin.H{"code": -32602, "message": "invalid cursor"},
			})
			return
		}
		offset = parsed
	}

	limit := req.Params.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	end := offset + limit
	if end > len(s.events) {
		end = len(s.events)
	}

	c.JSON(http.StatusOK, gin.H{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result": gin.H{
			"events": s.events[offset:end],
			"cursor": strconv.Itoa(end),
		},
	})
}
