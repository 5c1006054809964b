package bidding

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"auction-hub/internal/auctionerrors"
	model "auction-hub/internal/models"
	"auction-hub/internal/store"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

// captureNotifier records fire-and-forget notifications for assertions
type captureNotifier struct {
	mu   sync.Mutex
	bids []model.Bid
}

func (n *captureNotifier) BidPlaced(_ context.Context, _ model.Auction, bid model.Bid) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bids = append(n.bids, bid)
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.bids)
}

func activeAuction(auctionID string, currentBid float64, bidCount int) model.Auction {
	now := time.Now().UTC()
	return model.Auction{
		AuctionID:    auctionID,
		SellerID:     "seller-1",
		Title:        "Sunset over Karoo",
		StartingBid:  500,
		BidIncrement: 1,
		CurrentBid:   currentBid,
		BidCount:     bidCount,
		Status:       model.StatusPublished,
		StartAt:      now.Add(-time.Hour),
		EndAt:        now.Add(time.Hour),
	}
}

func TestBiddingService_PlaceBid(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		auctionID     string
		bidderID      string
		amount        float64
		mockSetup     func(auctions *store.MockAuctionStore)
		expectedError error
	}{
		{
			name:      "valid_first_bid",
			auctionID: "a1",
			bidderID:  "user-1",
			amount:    600,
			mockSetup: func(auctions *store.MockAuctionStore) {
				auctions.EXPECT().GetAuction(gomock.Any(), "a1").Return(activeAuction("a1", 500, 0), nil)
				auctions.EXPECT().ApplyBid(gomock.Any(), 500.0, gomock.Any()).
					DoAndReturn(func(_ context.Context, _ float64, bid model.Bid) (model.Auction, error) {
						updated := activeAuction("a1", bid.Amount, 1)
						updated.HighestBidder = bid.BidderID
						return updated, nil
					})
			},
		},
		{
			name:          "empty_auctionID",
			auctionID:     "",
			bidderID:      "user-1",
			amount:        600,
			mockSetup:     func(*store.MockAuctionStore) {},
			expectedError: auctionerrors.ErrInvalidBid,
		},
		{
			name:          "empty_bidderID",
			auctionID:     "a1",
			bidderID:      "",
			amount:        600,
			mockSetup:     func(*store.MockAuctionStore) {},
			expectedError: auctionerrors.ErrInvalidBid,
		},
		{
			name:          "zero_amount",
			auctionID:     "a1",
			bidderID:      "user-1",
			amount:        0,
			mockSetup:     func(*store.MockAuctionStore) {},
			expectedError: auctionerrors.ErrInvalidBid,
		},
		{
			name:          "nan_amount",
			auctionID:     "a1",
			bidderID:      "user-1",
			amount:        math.NaN(),
			mockSetup:     func(*store.MockAuctionStore) {},
			expectedError: auctionerrors.ErrInvalidBid,
		},
		{
			name:          "infinite_amount",
			auctionID:     "a1",
			bidderID:      "user-1",
			amount:        math.Inf(1),
			mockSetup:     func(*store.MockAuctionStore) {},
			expectedError: auctionerrors.ErrInvalidBid,
		},
		{
			name:      "auction_not_found",
			auctionID: "missing",
			bidderID:  "user-1",
			amount:    600,
			mockSetup: func(auctions *store.MockAuctionStore) {
				auctions.EXPECT().GetAuction(gomock.Any(), "missing").
					Return(model.Auction{}, auctionerrors.ErrAuctionNotFound)
			},
			expectedError: auctionerrors.ErrAuctionNotFound,
		},
		{
			name:      "bid_equal_to_current_is_too_low",
			auctionID: "a1",
			bidderID:  "user-2",
			amount:    500,
			mockSetup: func(auctions *store.MockAuctionStore) {
				auctions.EXPECT().GetAuction(gomock.Any(), "a1").Return(activeAuction("a1", 500, 0), nil)
			},
			expectedError: auctionerrors.ErrBidTooLow,
		},
		{
			name:      "bid_below_increment_is_too_low",
			auctionID: "a1",
			bidderID:  "user-2",
			amount:    500.5,
			mockSetup: func(auctions *store.MockAuctionStore) {
				auctions.EXPECT().GetAuction(gomock.Any(), "a1").Return(activeAuction("a1", 500, 3), nil)
			},
			expectedError: auctionerrors.ErrBidTooLow,
		},
		{
			name:      "upcoming_auction_rejects_bids",
			auctionID: "a1",
			bidderID:  "user-1",
			amount:    600,
			mockSetup: func(auctions *store.MockAuctionStore) {
				a := activeAuction("a1", 500, 0)
				a.StartAt = time.Now().UTC().Add(time.Hour)
				a.EndAt = time.Now().UTC().Add(2 * time.Hour)
				auctions.EXPECT().GetAuction(gomock.Any(), "a1").Return(a, nil)
			},
			expectedError: auctionerrors.ErrAuctionNotActive,
		},
		{
			name:      "ended_auction_rejects_bids",
			auctionID: "a1",
			bidderID:  "user-1",
			amount:    600,
			mockSetup: func(auctions *store.MockAuctionStore) {
				a := activeAuction("a1", 500, 5)
				a.StartAt = time.Now().UTC().Add(-2 * time.Hour)
				a.EndAt = time.Now().UTC().Add(-time.Hour)
				auctions.EXPECT().GetAuction(gomock.Any(), "a1").Return(a, nil)
			},
			expectedError: auctionerrors.ErrAuctionNotActive,
		},
		{
			name:      "draft_auction_rejects_bids",
			auctionID: "a1",
			bidderID:  "user-1",
			amount:    600,
			mockSetup: func(auctions *store.MockAuctionStore) {
				a := activeAuction("a1", 500, 0)
				a.Status = model.StatusDraft
				auctions.EXPECT().GetAuction(gomock.Any(), "a1").Return(a, nil)
			},
			expectedError: auctionerrors.ErrAuctionNotActive,
		},
		{
			name:      "conflict_exhausts_retries",
			auctionID: "a1",
			bidderID:  "user-1",
			amount:    600,
			mockSetup: func(auctions *store.MockAuctionStore) {
				auctions.EXPECT().GetAuction(gomock.Any(), "a1").
					Return(activeAuction("a1", 500, 0), nil).Times(maxPlaceAttempts)
				auctions.EXPECT().ApplyBid(gomock.Any(), 500.0, gomock.Any()).
					Return(model.Auction{}, auctionerrors.ErrBidConflict).Times(maxPlaceAttempts)
			},
			expectedError: auctionerrors.ErrBidConflict,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			auctions := store.NewMockAuctionStore(ctrl)
			bids := store.NewMockBidLog(ctrl)
			notifier := &captureNotifier{}
			service := NewBiddingService(auctions, bids, notifier)

			tc.mockSetup(auctions)

			bid, auction, err := service.PlaceBid(ctx, tc.auctionID, tc.bidderID, tc.amount)
			if tc.expectedError != nil {
				require.Error(t, err)
				require.ErrorIs(t, err, tc.expectedError)
				require.Zero(t, notifier.count(), "rejected bids must not be broadcast")
				return
			}

			require.NoError(t, err)
			require.NotEmpty(t, bid.BidID)
			require.Equal(t, tc.auctionID, bid.AuctionID)
			require.Equal(t, tc.bidderID, bid.BidderID)
			require.Equal(t, tc.amount, bid.Amount)
			require.Equal(t, tc.amount, auction.CurrentBid)
			require.Equal(t, tc.bidderID, auction.HighestBidder)
			require.Equal(t, 1, notifier.count(), "accepted bid must trigger exactly one notification")
		})
	}
}

func TestBiddingService_PlaceBid_RetriesAfterConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	auctions := store.NewMockAuctionStore(ctrl)
	notifier := &captureNotifier{}
	service := NewBiddingService(auctions, store.NewMockBidLog(ctrl), notifier)

	// first attempt reads currentBid=500 and loses; second attempt re-reads
	// the advanced state (600) and wins.
	first := auctions.EXPECT().GetAuction(gomock.Any(), "a1").Return(activeAuction("a1", 500, 0), nil)
	auctions.EXPECT().GetAuction(gomock.Any(), "a1").Return(activeAuction("a1", 600, 1), nil).After(first)

	auctions.EXPECT().ApplyBid(gomock.Any(), 500.0, gomock.Any()).
		Return(model.Auction{}, auctionerrors.ErrBidConflict)
	auctions.EXPECT().ApplyBid(gomock.Any(), 600.0, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ float64, bid model.Bid) (model.Auction, error) {
			updated := activeAuction("a1", bid.Amount, 2)
			updated.HighestBidder = bid.BidderID
			return updated, nil
		})

	bid, auction, err := service.PlaceBid(context.Background(), "a1", "user-1", 700)
	require.NoError(t, err)
	require.Equal(t, 700.0, bid.Amount)
	require.Equal(t, 700.0, auction.CurrentBid)
	require.Equal(t, 2, auction.BidCount)
	require.Equal(t, 1, notifier.count())
}

func TestBiddingService_PlaceBid_TooLowReportsMinimum(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	auctions := store.NewMockAuctionStore(ctrl)
	service := NewBiddingService(auctions, store.NewMockBidLog(ctrl), nil)

	auctions.EXPECT().GetAuction(gomock.Any(), "a1").Return(activeAuction("a1", 500, 0), nil)

	_, _, err := service.PlaceBid(context.Background(), "a1", "user-2", 500)
	require.Error(t, err)

	var tooLow *BidTooLowError
	require.ErrorAs(t, err, &tooLow)
	require.Equal(t, 500.0, tooLow.CurrentBid)
	require.Equal(t, 501.0, tooLow.MinimumBid)
}

func TestBiddingService_CreateAuction(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	valid := model.Auction{
		SellerID:    "seller-1",
		Title:       "Bronze figure",
		StartingBid: 250,
		StartAt:     now.Add(time.Hour),
		EndAt:       now.Add(48 * time.Hour),
	}

	t.Run("draft_with_normalized_defaults", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		auctions := store.NewMockAuctionStore(ctrl)
		service := NewBiddingService(auctions, store.NewMockBidLog(ctrl), nil)

		auctions.EXPECT().CreateAuction(gomock.Any(), gomock.Any()).Return(nil)

		created, err := service.CreateAuction(ctx, valid, false)
		require.NoError(t, err)
		require.NotEmpty(t, created.AuctionID)
		require.Equal(t, model.StatusDraft, created.Status)
		require.Equal(t, 250.0, created.CurrentBid)
		require.Equal(t, 1.0, created.BidIncrement, "unset increment is normalized to 1")
		require.Zero(t, created.BidCount)
		require.Empty(t, created.HighestBidder)
	})

	t.Run("published_immediately", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		auctions := store.NewMockAuctionStore(ctrl)
		service := NewBiddingService(auctions, store.NewMockBidLog(ctrl), nil)

		auctions.EXPECT().CreateAuction(gomock.Any(), gomock.Any()).Return(nil)

		created, err := service.CreateAuction(ctx, valid, true)
		require.NoError(t, err)
		require.Equal(t, model.StatusPublished, created.Status)
	})

	t.Run("validation_failures", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		service := NewBiddingService(store.NewMockAuctionStore(ctrl), store.NewMockBidLog(ctrl), nil)

		noSeller := valid
		noSeller.SellerID = ""
		_, err := service.CreateAuction(ctx, noSeller, false)
		require.ErrorIs(t, err, auctionerrors.ErrInvalidBid)

		freePiece := valid
		freePiece.StartingBid = 0
		_, err = service.CreateAuction(ctx, freePiece, false)
		require.ErrorIs(t, err, auctionerrors.ErrInvalidBid)

		backwards := valid
		backwards.EndAt = backwards.StartAt.Add(-time.Hour)
		_, err = service.CreateAuction(ctx, backwards, false)
		require.ErrorIs(t, err, auctionerrors.ErrInvalidBid)
	})
}

func TestBiddingService_PublishAuction(t *testing.T) {
	ctx := context.Background()

	t.Run("draft_publishes", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		auctions := store.NewMockAuctionStore(ctrl)
		service := NewBiddingService(auctions, store.NewMockBidLog(ctrl), nil)

		draft := activeAuction("a1", 500, 0)
		draft.Status = model.StatusDraft
		auctions.EXPECT().GetAuction(gomock.Any(), "a1").Return(draft, nil)
		auctions.EXPECT().SetStatus(gomock.Any(), "a1", model.StatusPublished, gomock.Any()).Return(nil)

		published, err := service.PublishAuction(ctx, "a1")
		require.NoError(t, err)
		require.Equal(t, model.StatusActive, published.Status, "already-started auction resolves to active")
	})

	t.Run("non_draft_rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		auctions := store.NewMockAuctionStore(ctrl)
		service := NewBiddingService(auctions, store.NewMockBidLog(ctrl), nil)

		auctions.EXPECT().GetAuction(gomock.Any(), "a1").Return(activeAuction("a1", 500, 0), nil)

		_, err := service.PublishAuction(ctx, "a1")
		require.ErrorIs(t, err, auctionerrors.ErrInvalidTransition)
	})
}

func TestBiddingService_CloseAuction(t *testing.T) {
	ctx := context.Background()

	t.Run("ended_closes", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		auctions := store.NewMockAuctionStore(ctrl)
		service := NewBiddingService(auctions, store.NewMockBidLog(ctrl), nil)

		ended := activeAuction("a1", 900, 4)
		ended.StartAt = time.Now().UTC().Add(-3 * time.Hour)
		ended.EndAt = time.Now().UTC().Add(-time.Hour)
		auctions.EXPECT().GetAuction(gomock.Any(), "a1").Return(ended, nil)
		auctions.EXPECT().SetStatus(gomock.Any(), "a1", model.StatusClosed, gomock.Any()).Return(nil)

		closed, err := service.CloseAuction(ctx, "a1")
		require.NoError(t, err)
		require.Equal(t, model.StatusClosed, closed.Status)
	})

	t.Run("still_active_rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		auctions := store.NewMockAuctionStore(ctrl)
		service := NewBiddingService(auctions, store.NewMockBidLog(ctrl), nil)

		auctions.EXPECT().GetAuction(gomock.Any(), "a1").Return(activeAuction("a1", 500, 0), nil)

		_, err := service.CloseAuction(ctx, "a1")
		require.ErrorIs(t, err, auctionerrors.ErrInvalidTransition)
	})
}

func TestBiddingService_GetAuctionsByBidder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	auctions := store.NewMockAuctionStore(ctrl)
	bids := store.NewMockBidLog(ctrl)
	service := NewBiddingService(auctions, bids, nil)

	now := time.Now().UTC()
	bids.EXPECT().BidsByBidder(gomock.Any(), "user-1").Return([]model.Bid{
		{BidID: "b1", AuctionID: "a1", BidderID: "user-1", Amount: 60, PlacedAt: now},
		{BidID: "b2", AuctionID: "a1", BidderID: "user-1", Amount: 80, PlacedAt: now},
		{BidID: "b3", AuctionID: "a2", BidderID: "user-1", Amount: 70, PlacedAt: now},
	}, nil)
	auctions.EXPECT().GetAuction(gomock.Any(), "a1").Return(activeAuction("a1", 80, 2), nil)
	auctions.EXPECT().GetAuction(gomock.Any(), "a2").Return(activeAuction("a2", 70, 1), nil)

	result, err := service.GetAuctionsByBidder(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, result, 2, "auctions are deduplicated across repeat bids")
}
