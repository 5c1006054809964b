package bidding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"auction-hub/internal/auctionerrors"
	model "auction-hub/internal/models"
	"auction-hub/internal/store"
	"auction-hub/utils"
)

// maxPlaceAttempts bounds the re-read/re-validate loop when a conditional
// update loses a race with another accepted bid.
const maxPlaceAttempts = 3

// Notifier receives accepted bids for asynchronous fan-out. Implementations
// must not block the caller; failures are theirs to log.
type Notifier interface {
	BidPlaced(ctx context.Context, auction model.Auction, bid model.Bid)
}

// BidTooLowError reports the rejection details a client needs to retry with
// a corrected amount.
type BidTooLowError struct {
	CurrentBid float64
	MinimumBid float64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid must be higher than current bid of R%v (minimum R%v)", e.CurrentBid, e.MinimumBid)
}

func (e *BidTooLowError) Unwrap() error { return auctionerrors.ErrBidTooLow }

// BiddingService defines the business logic for auction bidding
type BiddingService struct {
	auctions store.AuctionStore
	bids     store.BidLog
	notifier Notifier
}

// NewBiddingService creates a new BiddingService instance. notifier may be
// nil when no real-time fan-out is wired.
func NewBiddingService(auctions store.AuctionStore, bids store.BidLog, notifier Notifier) *BiddingService {
	return &BiddingService{
		auctions: auctions,
		bids:     bids,
		notifier: notifier,
	}
}

// PlaceBid validates and commits a bid against the auction's current state.
// The commit is a compare-and-set on the previously read currentBid; on a
// lost race the state is re-read and re-validated before retrying. On
// success the updated auction snapshot is returned and a broadcast is
// requested asynchronously; broadcast failures never affect the result.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount float64) (model.Bid, model.Auction, error) {
	if auctionID == "" || bidderID == "" {
		return model.Bid{}, model.Auction{}, fmt.Errorf("service: %w - missing auctionID or bidderID", auctionerrors.ErrInvalidBid)
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return model.Bid{}, model.Auction{}, fmt.Errorf("service: %w - bid amount must be a finite positive number", auctionerrors.ErrInvalidBid)
	}

	for attempt := 1; attempt <= maxPlaceAttempts; attempt++ {
		auction, err := s.auctions.GetAuction(ctx, auctionID)
		if err != nil {
			return model.Bid{}, model.Auction{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
		}

		now := time.Now().UTC()
		if status := auction.EffectiveStatus(now); status != model.StatusActive {
			return model.Bid{}, model.Auction{}, fmt.Errorf("service: auction %s is %s: %w", auctionID, status, auctionerrors.ErrAuctionNotActive)
		}
		if amount < auction.MinNextBid() {
			return model.Bid{}, model.Auction{}, fmt.Errorf("service: %w", &BidTooLowError{
				CurrentBid: auction.CurrentBid,
				MinimumBid: auction.MinNextBid(),
			})
		}

		bid := model.Bid{
			BidID:     utils.GenerateID(),
			AuctionID: auctionID,
			BidderID:  bidderID,
			Amount:    amount,
			PlacedAt:  now,
		}

		updated, err := s.auctions.ApplyBid(ctx, auction.CurrentBid, bid)
		if errors.Is(err, auctionerrors.ErrBidConflict) {
			utils.Warn("PlaceBid: lost update race, retrying", map[string]any{
				"auction_id": auctionID,
				"attempt":    attempt,
			})
			continue
		}
		if err != nil {
			return model.Bid{}, model.Auction{}, fmt.Errorf("service: failed to commit bid for auction %s by bidder %s: %w", auctionID, bidderID, err)
		}

		if s.notifier != nil {
			s.notifier.BidPlaced(ctx, updated, bid)
		}
		return bid, updated, nil
	}

	return model.Bid{}, model.Auction{}, fmt.Errorf("service: auction %s too contended after %d attempts: %w",
		auctionID, maxPlaceAttempts, auctionerrors.ErrBidConflict)
}

// CreateAuction registers a new auction for a seller, as a draft or
// published immediately. The bid increment is normalized so MinNextBid is
// always strictly above the current bid.
func (s *BiddingService) CreateAuction(ctx context.Context, auction model.Auction, publish bool) (model.Auction, error) {
	if auction.SellerID == "" || auction.Title == "" {
		return model.Auction{}, fmt.Errorf("service: %w - missing sellerID or title", auctionerrors.ErrInvalidBid)
	}
	if auction.StartingBid <= 0 {
		return model.Auction{}, fmt.Errorf("service: %w - starting bid must be positive", auctionerrors.ErrInvalidBid)
	}
	if !auction.EndAt.After(auction.StartAt) {
		return model.Auction{}, fmt.Errorf("service: %w - end time must be after start time", auctionerrors.ErrInvalidBid)
	}

	now := time.Now().UTC()
	auction.AuctionID = utils.GenerateID()
	auction.CurrentBid = auction.StartingBid
	auction.BidCount = 0
	auction.HighestBidder = ""
	if auction.BidIncrement <= 0 {
		auction.BidIncrement = 1
	}
	auction.Status = model.StatusDraft
	if publish {
		auction.Status = model.StatusPublished
	}
	auction.CreatedAt = now
	auction.UpdatedAt = now

	if err := s.auctions.CreateAuction(ctx, auction); err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to create auction: %w", err)
	}
	return auction, nil
}

// PublishAuction moves a draft auction into the published lifecycle.
func (s *BiddingService) PublishAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	auction, err := s.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}
	if auction.Status != model.StatusDraft {
		return model.Auction{}, fmt.Errorf("service: auction %s is not a draft: %w", auctionID, auctionerrors.ErrInvalidTransition)
	}
	now := time.Now().UTC()
	if err := s.auctions.SetStatus(ctx, auctionID, model.StatusPublished, now); err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to publish auction %s: %w", auctionID, err)
	}
	auction.Status = model.StatusPublished
	auction.UpdatedAt = now
	return auction.Resolved(now), nil
}

// CloseAuction marks an ended auction as closed, typically on payment
// confirmation. Only ended auctions can close.
func (s *BiddingService) CloseAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	auction, err := s.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}
	now := time.Now().UTC()
	if auction.EffectiveStatus(now) != model.StatusEnded {
		return model.Auction{}, fmt.Errorf("service: auction %s has not ended: %w", auctionID, auctionerrors.ErrInvalidTransition)
	}
	if err := s.auctions.SetStatus(ctx, auctionID, model.StatusClosed, now); err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to close auction %s: %w", auctionID, err)
	}
	auction.Status = model.StatusClosed
	auction.UpdatedAt = now
	return auction, nil
}

// GetAuction returns the resolved auction snapshot for an ID
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	if auctionID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidBid)
	}
	auction, err := s.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return auction.Resolved(time.Now().UTC()), nil
}

// ListAuctions returns resolved snapshots, optionally filtered by effective status
func (s *BiddingService) ListAuctions(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error) {
	auctions, err := s.auctions.ListAuctions(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}
	now := time.Now().UTC()
	resolved := make([]model.Auction, 0, len(auctions))
	for _, a := range auctions {
		a = a.Resolved(now)
		if status != "" && a.Status != status {
			continue
		}
		resolved = append(resolved, a)
	}
	return resolved, nil
}

// GetBidsForAuction returns all bids for a specific auction
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidBid)
	}
	bids, err := s.bids.BidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// GetHighestBid returns the highest bid for a specific auction
func (s *BiddingService) GetHighestBid(ctx context.Context, auctionID string) (model.Bid, error) {
	if auctionID == "" {
		return model.Bid{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidBid)
	}
	bid, err := s.bids.HighestBid(ctx, auctionID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to get highest bid for auction %s: %w", auctionID, err)
	}
	return bid, nil
}

// GetAuctionsByBidder returns the auctions a bidder has placed bids on
func (s *BiddingService) GetAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error) {
	if bidderID == "" {
		return nil, fmt.Errorf("service: %w - empty bidder ID", auctionerrors.ErrInvalidBid)
	}
	bids, err := s.bids.BidsByBidder(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for bidder %s: %w", bidderID, err)
	}

	now := time.Now().UTC()
	seen := make(map[string]bool)
	var auctions []model.Auction
	for _, b := range bids {
		if seen[b.AuctionID] {
			continue
		}
		seen[b.AuctionID] = true
		auction, err := s.auctions.GetAuction(ctx, b.AuctionID)
		if err != nil {
			return nil, fmt.Errorf("service: failed to get auction %s: %w", b.AuctionID, err)
		}
		auctions = append(auctions, auction.Resolved(now))
	}
	return auctions, nil
}
