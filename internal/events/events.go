// Package events carries accepted-bid events over RabbitMQ so broadcast
// fan-out can run outside the bid placement path. Publish failures are
// logged and swallowed; a bid is never rolled back because its broadcast
// trigger failed.
package events

import model "auction-hub/internal/models"

// BidQueueName is the durable queue carrying accepted-bid events.
const BidQueueName = "auction.bid.placed"

// BidPlacedEvent is the broadcast trigger payload.
type BidPlacedEvent struct {
	Action    string    `json:"action"`
	AuctionID string    `json:"auctionId"`
	Bid       model.Bid `json:"bidData"`
}
