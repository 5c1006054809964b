package helpers

import (
	"time"

	model "auction-hub/internal/models"
)

// Request/Response DTOs. Field names follow the external wire contract
// (camelCase), which is also what the realtime push messages use.

type PlaceBidRequest struct {
	AuctionID string  `json:"auctionId" binding:"required"`
	BidAmount float64 `json:"bidAmount" binding:"required,gt=0"`
	BidderID  string  `json:"bidderId" binding:"required"`
}

type PlaceBidResponse struct {
	Message string        `json:"message"`
	Bid     model.Bid     `json:"bid"`
	Auction model.Auction `json:"auction"`
}

type CreateAuctionRequest struct {
	Title        string    `json:"title" binding:"required"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	ImageKeys    []string  `json:"imageKeys"`
	StartingBid  float64   `json:"startingBid" binding:"required,gt=0"`
	BidIncrement float64   `json:"bidIncrement"`
	StartAt      time.Time `json:"startAt" binding:"required"`
	EndAt        time.Time `json:"endAt" binding:"required"`
	Publish      bool      `json:"publish"`
}

type BroadcastRequest struct {
	AuctionID string    `json:"auctionId" binding:"required"`
	BidData   model.Bid `json:"bidData" binding:"required"`
	Action    string    `json:"action"`
}

type BroadcastResponse struct {
	Message                 string `json:"message"`
	Subscribers             int    `json:"subscribers"`
	StaleConnectionsRemoved int    `json:"staleConnectionsRemoved"`
}

type PaymentWebhookRequest struct {
	Reference string `json:"reference" binding:"required"` // auction the payment settles
	Status    string `json:"status" binding:"required"`
}

type ImageURLResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}
