package handlers

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"chamber/internal/cache"
	"chamber/internal/coordinator"
	"chamber/internal/errors"
	"chamber/internal/middleware"
	"chamber/internal/models"
	"chamber/internal/query"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	coordinator *coordinator.Coordinator
	facade      *query.Facade
	redisClient *cache.Client
}

func NewHandlers(coord *coordinator.Coordinator, facade *query.Facade, redisClient *cache.Client) *Handlers {
	return &Handlers{
		coordinator: coord,
		facade:      facade,
		redisClient: redisClient,
	}
}

// Auction read handlers

// ListAuctions - GET /api/auctions
func (h *Handlers) ListAuctions(c *gin.Context) {
	filter := query.Filter{
		Tier:   c.Query("tier"),
		SortBy: c.DefaultQuery("sortBy", query.SortByEndTime),
		Query:  c.Query("query"),
	}

	if raw := c.Query("endingWithinSeconds"); raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || seconds <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "endingWithinSeconds must be a positive integer"})
			return
		}
		filter.EndingWithinSeconds = seconds
	}

	if filter.SortBy != query.SortByEndTime && filter.SortBy != query.SortByHighestBid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sortBy must be endTime or highestBid"})
		return
	}

	// Free-text queries bypass the cache: too many distinct keys to be
	// worth the memory.
	shouldCache := filter.Query == "" && h.redisClient != nil

	if shouldCache {
		rawJSON, err := h.redisClient.GetAuctionsListRaw(c.Request.Context(), filter.Tier, filter.SortBy, filter.EndingWithinSeconds)
		if err == nil {
			c.Data(http.StatusOK, "application/json", rawJSON)
			return
		}
	}

	items := h.facade.ListActive(c.Request.Context(), filter)
	response := gin.H{"auctions": items, "count": len(items)}

	if shouldCache {
		h.redisClient.SetAuctionsList(c.Request.Context(), filter.Tier, filter.SortBy, filter.EndingWithinSeconds, response)
	}

	c.JSON(http.StatusOK, response)
}

// GetAuction - GET /api/auctions/:eventAddress/:tokenId
func (h *Handlers) GetAuction(c *gin.Context) {
	key, ok := pathKey(c)
	if !ok {
		return
	}

	item, err := h.facade.GetAuction(key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Auction not found"})
		return
	}

	c.JSON(http.StatusOK, item)
}

// ListListings - GET /api/listings
func (h *Handlers) ListListings(c *gin.Context) {
	items := h.facade.ListListings()
	c.JSON(http.StatusOK, gin.H{"listings": items, "count": len(items)})
}

// GetUserBalance - GET /api/balances/:account/:eventAddress
func (h *Handlers) GetUserBalance(c *gin.Context) {
	account := strings.ToLower(c.Param("account"))
	eventAddress := c.Param("eventAddress")
	if account == "" || eventAddress == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account and eventAddress are required"})
		return
	}

	c.JSON(http.StatusOK, h.facade.GetUserBalance(account, eventAddress))
}

// Write handlers. All of them broker signed transactions through the
// wallet bridge; none of them mutate the store directly.

// CreateListing - POST /api/listings
func (h *Handlers) CreateListing(c *gin.Context) {
	var req models.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, ok := requireAccount(c)
	if !ok {
		return
	}

	key := models.ListingKey{EventAddress: req.EventAddress, TokenID: req.TokenID}
	response, err := h.coordinator.CreateListing(c.Request.Context(), account, key, req.Price)
	if err != nil {
		respondError(c, err, "Failed to create listing")
		return
	}

	c.JSON(http.StatusAccepted, response)
}

// CreateAuction - POST /api/auctions
func (h *Handlers) CreateAuction(c *gin.Context) {
	var req models.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, ok := requireAccount(c)
	if !ok {
		return
	}

	key := models.ListingKey{EventAddress: req.EventAddress, TokenID: req.TokenID}
	response, err := h.coordinator.CreateAuction(c.Request.Context(), account, key,
		req.StartingPrice, req.ReservePrice, req.DurationSeconds, req.MinBidIncrement)
	if err != nil {
		respondError(c, err, "Failed to create auction")
		return
	}

	c.JSON(http.StatusAccepted, response)
}

// PlaceBid - POST /api/bids
func (h *Handlers) PlaceBid(c *gin.Context) {
	var req models.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, ok := requireAccount(c)
	if !ok {
		return
	}

	key := models.ListingKey{EventAddress: req.EventAddress, TokenID: req.TokenID}
	response, err := h.coordinator.SubmitBid(c.Request.Context(), key, account, req.Amount)
	if err != nil {
		respondError(c, err, "Failed to submit bid")
		return
	}

	c.JSON(http.StatusAccepted, response)
}

// SettleAuction - POST /api/auctions/:eventAddress/:tokenId/settle
func (h *Handlers) SettleAuction(c *gin.Context) {
	key, ok := pathKey(c)
	if !ok {
		return
	}

	account, ok := requireAccount(c)
	if !ok {
		return
	}

	response, alreadyTerminal, err := h.coordinator.SettleAuction(c.Request.Context(), account, key)
	if err != nil {
		respondError(c, err, "Failed to settle auction")
		return
	}

	if alreadyTerminal {
		c.JSON(http.StatusOK, gin.H{"status": "already_settled"})
		return
	}

	c.JSON(http.StatusAccepted, response)
}

// CancelAuction - POST /api/auctions/:eventAddress/:tokenId/cancel
func (h *Handlers) CancelAuction(c *gin.Context) {
	key, ok := pathKey(c)
	if !ok {
		return
	}

	account, ok := requireAccount(c)
	if !ok {
		return
	}

	response, alreadyTerminal, err := h.coordinator.CancelAuction(c.Request.Context(), account, key)
	if err != nil {
		respondError(c, err, "Failed to cancel auction")
		return
	}

	if alreadyTerminal {
		c.JSON(http.StatusOK, gin.H{"status": "already_terminal"})
		return
	}

	c.JSON(http.StatusAccepted, response)
}

func pathKey(c *gin.Context) (models.ListingKey, bool) {
	eventAddress := c.Param("eventAddress")
	tokenID, err := strconv.ParseInt(c.Param("tokenId"), 10, 64)
	if err != nil || eventAddress == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid auction key"})
		return models.ListingKey{}, false
	}
	return models.ListingKey{EventAddress: eventAddress, TokenID: tokenID}, true
}

func requireAccount(c *gin.Context) (string, bool) {
	account, ok := middleware.AccountFromContext(c.Request.Context())
	if !ok || account == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing X-Wallet-Address header"})
		return "", false
	}
	return account, true
}

// respondError maps the domain error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case stderrors.Is(err, errors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Auction not found"})
	case stderrors.Is(err, errors.ErrBidTooLow):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": errors.ErrBidTooLow.Error()})
	case stderrors.Is(err, errors.ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": errors.ErrInsufficientBalance.Error()})
	case stderrors.Is(err, errors.ErrAuctionNotActive),
		stderrors.Is(err, errors.ErrAuctionExpired),
		stderrors.Is(err, errors.ErrAuctionNotEnded),
		stderrors.Is(err, errors.ErrAuctionHasBids),
		stderrors.Is(err, errors.ErrBidInFlight),
		stderrors.Is(err, errors.ErrListingExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case stderrors.Is(err, errors.ErrLedgerUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errors.ErrLedgerUnavailable.Error()})
	default:
		slog.Error(fallback, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
