package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"auction-hub/internal/auctionerrors"
	"auction-hub/internal/bidding"
	"auction-hub/internal/broadcast"
	model "auction-hub/internal/models"
	"auction-hub/services/auction/helpers"
	"auction-hub/utils"

	"github.com/gin-gonic/gin"
)

type AuctionServiceInterface interface {
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount float64) (model.Bid, model.Auction, error)
	CreateAuction(ctx context.Context, auction model.Auction, publish bool) (model.Auction, error)
	PublishAuction(ctx context.Context, auctionID string) (model.Auction, error)
	CloseAuction(ctx context.Context, auctionID string) (model.Auction, error)
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctions(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error)
	GetBidsForAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetHighestBid(ctx context.Context, auctionID string) (model.Bid, error)
	GetAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error)
}

type BroadcasterInterface interface {
	Broadcast(ctx context.Context, auctionID string, bid model.Bid) (broadcast.Result, error)
}

type ImageSignerInterface interface {
	ImageURL(ctx context.Context, key string) (string, error)
}

type AuctionHandler struct {
	service     AuctionServiceInterface
	broadcaster BroadcasterInterface
	signer      ImageSignerInterface
}

// NewAuctionHandler creates a new AuctionHandler. broadcaster and signer may
// be nil when the corresponding surface is not wired.
func NewAuctionHandler(service AuctionServiceInterface, broadcaster BroadcasterInterface, signer ImageSignerInterface) *AuctionHandler {
	return &AuctionHandler{service: service, broadcaster: broadcaster, signer: signer}
}

// PlaceBidHandler handles POST /bids. The response shapes and messages are
// the external bid placement contract and are kept stable for clients.
func (h *AuctionHandler) PlaceBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "Missing required fields: auctionId, bidAmount, bidderId",
		})
		utils.Warn("PlaceBidHandler: binding error", map[string]any{"error": err.Error()})
		return
	}

	bid, auction, err := h.service.PlaceBid(c.Request.Context(), req.AuctionID, req.BidderID, req.BidAmount)
	if err != nil {
		h.writePlaceBidError(c, req, err)
		return
	}

	c.JSON(http.StatusOK, helpers.PlaceBidResponse{
		Message: "Bid placed successfully",
		Bid:     bid,
		Auction: auction,
	})
	helpers.LogSuccess("PlaceBidHandler", "bid placed successfully", map[string]any{
		"bid_id":     bid.BidID,
		"auction_id": bid.AuctionID,
		"bidder_id":  bid.BidderID,
		"amount":     bid.Amount,
	})
}

func (h *AuctionHandler) writePlaceBidError(c *gin.Context, req helpers.PlaceBidRequest, err error) {
	var tooLow *bidding.BidTooLowError
	switch {
	case errors.As(err, &tooLow):
		c.JSON(http.StatusBadRequest, gin.H{
			"message":    fmt.Sprintf("Bid must be higher than current bid of R%v", tooLow.CurrentBid),
			"minimumBid": tooLow.MinimumBid,
		})
	case errors.Is(err, auctionerrors.ErrAuctionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Auction not found"})
	case errors.Is(err, auctionerrors.ErrAuctionNotActive):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Auction is not accepting bids"})
	case errors.Is(err, auctionerrors.ErrInvalidBid):
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "Missing required fields: auctionId, bidAmount, bidderId",
		})
	case errors.Is(err, auctionerrors.ErrBidConflict):
		c.JSON(http.StatusConflict, gin.H{"message": "Bidding is busy, please retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"message": "Failed to place bid",
			"error":   err.Error(),
		})
	}
	utils.Error("PlaceBidHandler: failed to place bid", map[string]any{
		"auction_id": req.AuctionID,
		"bidder_id":  req.BidderID,
		"amount":     req.BidAmount,
		"error":      err.Error(),
	})
}

// CreateAuctionHandler handles POST /auctions. The seller is the
// authenticated caller.
func (h *AuctionHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	sellerID := c.GetString("user_id")
	auction := model.Auction{
		SellerID:     sellerID,
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		ImageKeys:    req.ImageKeys,
		StartingBid:  req.StartingBid,
		BidIncrement: req.BidIncrement,
		StartAt:      req.StartAt,
		EndAt:        req.EndAt,
	}

	created, err := h.service.CreateAuction(c.Request.Context(), auction, req.Publish)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("CreateAuctionHandler: failed to create auction", map[string]any{
			"seller_id": sellerID,
			"error":     err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, created, "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": created.AuctionID,
		"seller_id":  sellerID,
		"status":     created.Status,
	})
}

// PublishAuctionHandler handles POST /auctions/:auction_id/publish
func (h *AuctionHandler) PublishAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.service.PublishAuction(c.Request.Context(), auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("PublishAuctionHandler: publish failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auction published successfully")
	helpers.LogSuccess("PublishAuctionHandler", "auction published successfully", map[string]any{"auction_id": auctionID})
}

// GetAuctionHandler handles GET /auctions/:auction_id. This is also the
// polling fallback read for clients without a live connection.
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetAuctionHandler: error retrieving auction", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auction retrieved successfully")
}

// ListAuctionsHandler handles GET /auctions with an optional status filter
func (h *AuctionHandler) ListAuctionsHandler(c *gin.Context) {
	status := model.AuctionStatus(c.Query("status"))
	auctions, err := h.service.ListAuctions(c.Request.Context(), status)
	if err != nil {
		httpStatus, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, httpStatus, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("ListAuctionsHandler: error listing auctions", map[string]any{"error": err.Error()})
		return
	}

	if auctions == nil {
		auctions = []model.Auction{}
	}
	utils.JSONResponse(c, http.StatusOK, auctions, "auctions retrieved successfully")
}

// GetBidsByAuctionHandler handles GET /auctions/:auction_id/bids
func (h *AuctionHandler) GetBidsByAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.service.GetBidsForAuction(c.Request.Context(), auctionID)
	if err != nil && !errors.Is(err, auctionerrors.ErrNoBids) {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetBidsByAuctionHandler: error retrieving bids", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	if bids == nil {
		bids = []model.Bid{}
	}
	utils.JSONResponse(c, http.StatusOK, bids, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(bids),
	})
}

// GetHighestBidHandler handles GET /auctions/:auction_id/winning
func (h *AuctionHandler) GetHighestBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bid, err := h.service.GetHighestBid(c.Request.Context(), auctionID)
	if err != nil {
		if errors.Is(err, auctionerrors.ErrNoBids) {
			utils.JSONError(c, http.StatusNotFound, err, "no winning bid found")
			utils.Info("GetHighestBidHandler: no winning bid found", map[string]any{"auction_id": auctionID})
			return
		}
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetHighestBidHandler: winning bid error", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, bid, "winning bid retrieved successfully")
}

// GetAuctionsByBidderHandler handles GET /bidders/:bidder_id/auctions
func (h *AuctionHandler) GetAuctionsByBidderHandler(c *gin.Context) {
	bidderID := c.Param("bidder_id")
	auctions, err := h.service.GetAuctionsByBidder(c.Request.Context(), bidderID)
	if err != nil && !errors.Is(err, auctionerrors.ErrNoBids) {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetAuctionsByBidderHandler: error retrieving auctions", map[string]any{"bidder_id": bidderID, "error": err.Error()})
		return
	}

	if auctions == nil {
		auctions = []model.Auction{}
	}
	utils.JSONResponse(c, http.StatusOK, auctions, "auctions retrieved successfully")
}

// BroadcastHandler handles POST /internal/broadcast, the synchronous form of
// the broadcast trigger.
func (h *AuctionHandler) BroadcastHandler(c *gin.Context) {
	if h.broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "broadcast is not configured"})
		return
	}

	var req helpers.BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "BroadcastHandler", err)
		return
	}

	result, err := h.broadcaster.Broadcast(c.Request.Context(), req.AuctionID, req.BidData)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"message": "Broadcast failed",
			"error":   err.Error(),
		})
		utils.Error("BroadcastHandler: broadcast failed", map[string]any{"auction_id": req.AuctionID, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, helpers.BroadcastResponse{
		Message:                 "Broadcast successful",
		Subscribers:             result.Attempted,
		StaleConnectionsRemoved: result.Pruned,
	})
}

// PaymentWebhookHandler handles POST /payments/webhook. A paid status for an
// ended auction transitions it to closed; anything else is acknowledged and
// ignored.
func (h *AuctionHandler) PaymentWebhookHandler(c *gin.Context) {
	var req helpers.PaymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PaymentWebhookHandler", err)
		return
	}

	if req.Status != "paid" {
		utils.Info("PaymentWebhookHandler: ignoring non-paid status", map[string]any{
			"reference": req.Reference,
			"status":    req.Status,
		})
		utils.JSONResponse(c, http.StatusOK, nil, "payment status acknowledged")
		return
	}

	auction, err := h.service.CloseAuction(c.Request.Context(), req.Reference)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("PaymentWebhookHandler: failed to close auction", map[string]any{
			"reference": req.Reference,
			"error":     err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auction closed successfully")
	helpers.LogSuccess("PaymentWebhookHandler", "auction closed successfully", map[string]any{"auction_id": auction.AuctionID})
}

// GetImageURLHandler handles GET /auctions/:auction_id/images/:image_key and
// returns a time-limited readable URL for a stored image key.
func (h *AuctionHandler) GetImageURLHandler(c *gin.Context) {
	if h.signer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "image storage is not configured"})
		return
	}

	auctionID := c.Param("auction_id")
	imageKey := c.Param("image_key")

	auction, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		return
	}

	owned := false
	for _, key := range auction.ImageKeys {
		if key == imageKey {
			owned = true
			break
		}
	}
	if !owned {
		utils.JSONError(c, http.StatusNotFound, fmt.Errorf("image %s not found on auction %s", imageKey, auctionID), "image not found")
		return
	}

	url, err := h.signer.ImageURL(c.Request.Context(), imageKey)
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, err, "failed to sign image url")
		utils.Error("GetImageURLHandler: presign failed", map[string]any{"image_key": imageKey, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ImageURLResponse{Key: imageKey, URL: url}, "image url issued successfully")
}
