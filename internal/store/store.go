package store

import (
	"context"
	"time"

	model "auction-hub/internal/models"
)

// AuctionStore holds one record per auction and is the only write path for
// the contended bid fields (currentBid, highestBidder, bidCount).
type AuctionStore interface {
	CreateAuction(ctx context.Context, auction model.Auction) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctions(ctx context.Context) ([]model.Auction, error)
	SetStatus(ctx context.Context, auctionID string, status model.AuctionStatus, at time.Time) error

	// ApplyBid atomically appends the bid and advances the auction's bid
	// fields, but only if the auction's currentBid still equals
	// expectedCurrentBid. Returns the updated auction snapshot, or
	// auctionerrors.ErrBidConflict without mutating anything when another
	// bid won the race.
	ApplyBid(ctx context.Context, expectedCurrentBid float64, bid model.Bid) (model.Auction, error)
}

// BidLog is the read side of the append-only bid record store.
type BidLog interface {
	BidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	BidsByBidder(ctx context.Context, bidderID string) ([]model.Bid, error)
	HighestBid(ctx context.Context, auctionID string) (model.Bid, error)
}

// ConnectionRegistry tracks live subscriber connections by subscription
// target. Lookups by target must be index-backed, not full scans.
type ConnectionRegistry interface {
	// Subscribe sets or overwrites the subscription target for a
	// connection. Last write wins; re-subscribing is not an error.
	Subscribe(ctx context.Context, conn model.Connection) error
	// Remove deletes the entry. Removing an absent handle is a no-op.
	Remove(ctx context.Context, connectionID string) error
	FindByAuction(ctx context.Context, auctionID string) ([]model.Connection, error)
	FindWildcard(ctx context.Context) ([]model.Connection, error)
}
