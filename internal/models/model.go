package models

import "time"

// AuctionStatus is the lifecycle state of an auction. Draft, published and
// closed are persisted; upcoming, active and ended are derived from the
// start/end timestamps of a published auction at read time.
type AuctionStatus string

const (
	StatusDraft     AuctionStatus = "draft"
	StatusPublished AuctionStatus = "published"
	StatusUpcoming  AuctionStatus = "upcoming"
	StatusActive    AuctionStatus = "active"
	StatusEnded     AuctionStatus = "ended"
	StatusClosed    AuctionStatus = "closed"
)

// WildcardAuction is the subscription target meaning "every auction".
const WildcardAuction = "all"

// Auction represents one item up for sale.
//
// CurrentBid, HighestBidder and BidCount are mutated exclusively through the
// store's conditional ApplyBid; everything else is seller metadata.
type Auction struct {
	AuctionID     string        `json:"auctionId"`
	SellerID      string        `json:"sellerId"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Location      string        `json:"location"`
	ImageKeys     []string      `json:"imageKeys,omitempty"`
	StartingBid   float64       `json:"startingBid"`
	BidIncrement  float64       `json:"bidIncrement"`
	CurrentBid    float64       `json:"currentBid"`
	BidCount      int           `json:"bidCount"`
	HighestBidder string        `json:"highestBidder,omitempty"`
	Status        AuctionStatus `json:"status"`
	StartAt       time.Time     `json:"startAt"`
	EndAt         time.Time     `json:"endAt"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// EffectiveStatus resolves the time-driven states of a published auction.
// Draft and closed pass through unchanged.
func (a Auction) EffectiveStatus(now time.Time) AuctionStatus {
	switch a.Status {
	case StatusDraft, StatusClosed:
		return a.Status
	}
	if now.Before(a.StartAt) {
		return StatusUpcoming
	}
	if now.Before(a.EndAt) {
		return StatusActive
	}
	return StatusEnded
}

// MinNextBid is the smallest amount the next bid must reach.
func (a Auction) MinNextBid() float64 {
	base := a.CurrentBid
	if a.StartingBid > base {
		base = a.StartingBid
	}
	inc := a.BidIncrement
	if inc <= 0 {
		inc = 1
	}
	return base + inc
}

// Resolved returns a copy with Status replaced by the effective status, for
// use in API snapshots.
func (a Auction) Resolved(now time.Time) Auction {
	a.Status = a.EffectiveStatus(now)
	return a
}

// Bid represents one immutable accepted bid event.
type Bid struct {
	BidID     string    `json:"bidId"`
	AuctionID string    `json:"auctionId"`
	BidderID  string    `json:"bidderId"`
	Amount    float64   `json:"bidAmount"`
	PlacedAt  time.Time `json:"bidTime"`
}

// Connection represents one live real-time subscriber.
type Connection struct {
	ConnectionID string    `json:"connectionId"`
	AuctionID    string    `json:"auctionId"` // subscription target, WildcardAuction for all
	UserID       string    `json:"userId,omitempty"`
	ConnectedAt  time.Time `json:"connectedAt"`
}
