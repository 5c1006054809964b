package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-hub/internal/auctionerrors"
	model "auction-hub/internal/models"
)

// MemoryStore is a concurrency-safe in-memory implementation of AuctionStore
// and BidLog. It is the default backend and the one the test suites run on.
type MemoryStore struct {
	mu             sync.RWMutex
	auctions       map[string]model.Auction // key: auctionID -> auction record
	bids           map[string][]model.Bid   // key: auctionID -> bids in acceptance order
	bidderAuctions map[string][]string      // key: bidderID -> auctionIDs the bidder has bid on
}

// NewMemoryStore creates a new in-memory store instance
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions:       make(map[string]model.Auction),
		bids:           make(map[string][]model.Bid),
		bidderAuctions: make(map[string][]string),
	}
}

// CreateAuction inserts a new auction record
func (s *MemoryStore) CreateAuction(_ context.Context, auction model.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auctions[auction.AuctionID]; ok {
		return fmt.Errorf("create auction %s: already exists", auction.AuctionID)
	}
	s.auctions[auction.AuctionID] = auction
	return nil
}

// GetAuction returns the auction record for an ID
func (s *MemoryStore) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return auction, nil
}

// ListAuctions returns all auction records
func (s *MemoryStore) ListAuctions(_ context.Context) ([]model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	auctions := make([]model.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		auctions = append(auctions, a)
	}
	return auctions, nil
}

// SetStatus updates the persisted lifecycle status of an auction
func (s *MemoryStore) SetStatus(_ context.Context, auctionID string, status model.AuctionStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return fmt.Errorf("set status for auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	auction.Status = status
	auction.UpdatedAt = at
	s.auctions[auctionID] = auction
	return nil
}

// ApplyBid performs the conditional bid commit: the auction's currentBid must
// still equal expectedCurrentBid or nothing is written.
func (s *MemoryStore) ApplyBid(_ context.Context, expectedCurrentBid float64, bid model.Bid) (model.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, ok := s.auctions[bid.AuctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("apply bid for auction %s: %w", bid.AuctionID, auctionerrors.ErrAuctionNotFound)
	}
	if auction.CurrentBid != expectedCurrentBid {
		return model.Auction{}, fmt.Errorf("apply bid for auction %s: %w", bid.AuctionID, auctionerrors.ErrBidConflict)
	}

	auction.CurrentBid = bid.Amount
	auction.HighestBidder = bid.BidderID
	auction.BidCount++
	auction.UpdatedAt = bid.PlacedAt
	s.auctions[bid.AuctionID] = auction

	s.bids[bid.AuctionID] = append(s.bids[bid.AuctionID], bid)

	for _, id := range s.bidderAuctions[bid.BidderID] {
		if id == bid.AuctionID {
			return auction, nil
		}
	}
	s.bidderAuctions[bid.BidderID] = append(s.bidderAuctions[bid.BidderID], bid.AuctionID)

	return auction, nil
}

// BidsByAuction returns all bids for an auction in acceptance order
func (s *MemoryStore) BidsByAuction(_ context.Context, auctionID string) ([]model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bids, ok := s.bids[auctionID]
	if !ok || len(bids) == 0 {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}
	return append([]model.Bid(nil), bids...), nil
}

// BidsByBidder returns all bids a bidder has placed, across auctions
func (s *MemoryStore) BidsByBidder(_ context.Context, bidderID string) ([]model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	auctionIDs, ok := s.bidderAuctions[bidderID]
	if !ok || len(auctionIDs) == 0 {
		return nil, fmt.Errorf("get bids for bidder %s: %w", bidderID, auctionerrors.ErrNoBids)
	}

	var bids []model.Bid
	for _, auctionID := range auctionIDs {
		for _, b := range s.bids[auctionID] {
			if b.BidderID == bidderID {
				bids = append(bids, b)
			}
		}
	}
	return bids, nil
}

// HighestBid returns the highest bid for an auction; earliest wins a tie
func (s *MemoryStore) HighestBid(_ context.Context, auctionID string) (model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bids, ok := s.bids[auctionID]
	if !ok || len(bids) == 0 {
		return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}

	highest := bids[0]
	for _, b := range bids[1:] {
		if b.Amount > highest.Amount || (b.Amount == highest.Amount && b.PlacedAt.Before(highest.PlacedAt)) {
			highest = b
		}
	}
	return highest, nil
}

// MemoryRegistry is a concurrency-safe in-memory ConnectionRegistry with an
// index by subscription target.
type MemoryRegistry struct {
	mu       sync.RWMutex
	conns    map[string]model.Connection    // key: connectionID -> entry
	byTarget map[string]map[string]struct{} // key: auctionID or wildcard -> set of connectionIDs
}

// NewMemoryRegistry creates a new in-memory registry instance
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		conns:    make(map[string]model.Connection),
		byTarget: make(map[string]map[string]struct{}),
	}
}

// Subscribe sets or overwrites the subscription target for a connection
func (r *MemoryRegistry) Subscribe(_ context.Context, conn model.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.conns[conn.ConnectionID]; ok && old.AuctionID != conn.AuctionID {
		delete(r.byTarget[old.AuctionID], conn.ConnectionID)
	}
	r.conns[conn.ConnectionID] = conn

	if _, ok := r.byTarget[conn.AuctionID]; !ok {
		r.byTarget[conn.AuctionID] = make(map[string]struct{})
	}
	r.byTarget[conn.AuctionID][conn.ConnectionID] = struct{}{}
	return nil
}

// Remove deletes a connection entry; absent handles are a no-op
func (r *MemoryRegistry) Remove(_ context.Context, connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connectionID]
	if !ok {
		return nil
	}
	delete(r.byTarget[conn.AuctionID], connectionID)
	delete(r.conns, connectionID)
	return nil
}

// FindByAuction returns all connections subscribed to a specific auction
func (r *MemoryRegistry) FindByAuction(_ context.Context, auctionID string) ([]model.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.byTarget[auctionID]
	if !ok {
		return nil, nil
	}
	conns := make([]model.Connection, 0, len(ids))
	for id := range ids {
		conns = append(conns, r.conns[id])
	}
	return conns, nil
}

// FindWildcard returns all connections subscribed to every auction
func (r *MemoryRegistry) FindWildcard(ctx context.Context) ([]model.Connection, error) {
	return r.FindByAuction(ctx, model.WildcardAuction)
}
