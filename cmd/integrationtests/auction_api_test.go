package integrationtests

import (
	"context"
	"net/http"
	"testing"
	"time"

	model "auction-hub/internal/models"
	"auction-hub/services/auction/helpers"

	"github.com/stretchr/testify/require"
)

func TestPlaceBidFlow(t *testing.T) {
	env := SetupTestEnvWithAuctions(t, ActiveAuction("a1", 500, 1))

	// too low: equal to the current bid
	resp, w := ExecuteRequestAndParse(t, env, http.MethodPost, "/bids",
		helpers.PlaceBidRequest{AuctionID: "a1", BidAmount: 500, BidderID: "user-1"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Bid must be higher than current bid of R500", resp["message"])
	require.Equal(t, 501.0, resp["minimumBid"])

	// accepted
	resp, w = ExecuteRequestAndParse(t, env, http.MethodPost, "/bids",
		helpers.PlaceBidRequest{AuctionID: "a1", BidAmount: 600, BidderID: "user-1"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Bid placed successfully", resp["message"])

	bid := resp["bid"].(map[string]any)
	require.NotEmpty(t, bid["bidId"])
	require.Equal(t, "a1", bid["auctionId"])
	require.Equal(t, "user-1", bid["bidderId"])
	require.Equal(t, 600.0, bid["bidAmount"])
	_, err := time.Parse(time.RFC3339, bid["bidTime"].(string))
	require.NoError(t, err)

	auction := resp["auction"].(map[string]any)
	require.Equal(t, 600.0, auction["currentBid"])
	require.Equal(t, 1.0, auction["bidCount"])
	require.Equal(t, "user-1", auction["highestBidder"])

	// the polling read reflects the new state
	resp, w = ExecuteRequestAndParse(t, env, http.MethodGet, "/auctions/a1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]any)
	require.Equal(t, 600.0, data["currentBid"])
	require.Equal(t, "active", data["status"])
}

func TestPlaceBidUnknownAuction(t *testing.T) {
	env := SetupTestEnv()

	resp, w := ExecuteRequestAndParse(t, env, http.MethodPost, "/bids",
		helpers.PlaceBidRequest{AuctionID: "nope", BidAmount: 100, BidderID: "user-1"}, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "Auction not found", resp["message"])
}

func TestPlaceBidInvalidJSON(t *testing.T) {
	env := SetupTestEnv()

	resp, w := ExecuteRequestAndParse(t, env, http.MethodPost, "/bids",
		"{auctionId: 'missing quotes', bidAmount: 100}", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Missing required fields: auctionId, bidAmount, bidderId", resp["message"])
}

func TestCreateAndPublishAuction(t *testing.T) {
	env := SetupTestEnv()
	now := time.Now().UTC()

	body := map[string]any{
		"title":       "Morning mist",
		"location":    "Johannesburg",
		"startingBid": 250,
		"startAt":     now.Add(-time.Minute).Format(time.RFC3339),
		"endAt":       now.Add(24 * time.Hour).Format(time.RFC3339),
	}

	// creating requires an authenticated caller
	_, w := ExecuteRequestAndParse(t, env, http.MethodPost, "/auctions", body, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	token := MintToken(t, "seller-9")
	resp, w := ExecuteRequestAndParse(t, env, http.MethodPost, "/auctions", body, token)
	require.Equal(t, http.StatusCreated, w.Code)
	created := resp["data"].(map[string]any)
	require.Equal(t, "seller-9", created["sellerId"])
	require.Equal(t, "draft", created["status"])
	auctionID := created["auctionId"].(string)

	// drafts do not accept bids
	resp, w = ExecuteRequestAndParse(t, env, http.MethodPost, "/bids",
		helpers.PlaceBidRequest{AuctionID: auctionID, BidAmount: 300, BidderID: "user-1"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Auction is not accepting bids", resp["message"])

	// publish, then bidding opens
	resp, w = ExecuteRequestAndParse(t, env, http.MethodPost, "/auctions/"+auctionID+"/publish", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	published := resp["data"].(map[string]any)
	require.Equal(t, "active", published["status"])

	_, w = ExecuteRequestAndParse(t, env, http.MethodPost, "/bids",
		helpers.PlaceBidRequest{AuctionID: auctionID, BidAmount: 300, BidderID: "user-1"}, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestWinningBidAndHistory(t *testing.T) {
	env := SetupTestEnvWithAuctions(t, ActiveAuction("a1", 50, 1))

	for _, req := range []helpers.PlaceBidRequest{
		{AuctionID: "a1", BidAmount: 100, BidderID: "user-1"},
		{AuctionID: "a1", BidAmount: 120, BidderID: "user-3"},
		{AuctionID: "a1", BidAmount: 150, BidderID: "user-2"},
	} {
		_, w := ExecuteRequestAndParse(t, env, http.MethodPost, "/bids", req, "")
		require.Equal(t, http.StatusOK, w.Code)
	}

	resp, w := ExecuteRequestAndParse(t, env, http.MethodGet, "/auctions/a1/winning", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	winning := resp["data"].(map[string]any)
	require.Equal(t, "user-2", winning["bidderId"])
	require.Equal(t, 150.0, winning["bidAmount"])

	resp, w = ExecuteRequestAndParse(t, env, http.MethodGet, "/auctions/a1/bids", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp["data"].([]any), 3)

	// bid history of a quiet auction is empty, not an error
	env2 := SetupTestEnvWithAuctions(t, ActiveAuction("a2", 50, 1))
	resp, w = ExecuteRequestAndParse(t, env2, http.MethodGet, "/auctions/a2/bids", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, resp["data"].([]any))

	_, w = ExecuteRequestAndParse(t, env2, http.MethodGet, "/auctions/a2/winning", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuctionsByBidder(t *testing.T) {
	env := SetupTestEnvWithAuctions(t,
		ActiveAuction("a1", 50, 1),
		ActiveAuction("a2", 30, 1),
	)

	for _, req := range []helpers.PlaceBidRequest{
		{AuctionID: "a1", BidAmount: 100, BidderID: "user-1"},
		{AuctionID: "a2", BidAmount: 200, BidderID: "user-1"},
		{AuctionID: "a1", BidAmount: 150, BidderID: "user-1"}, // repeat on a1
	} {
		_, w := ExecuteRequestAndParse(t, env, http.MethodPost, "/bids", req, "")
		require.Equal(t, http.StatusOK, w.Code)
	}

	resp, w := ExecuteRequestAndParse(t, env, http.MethodGet, "/bidders/user-1/auctions", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	auctions := resp["data"].([]any)
	require.Len(t, auctions, 2)

	resp, w = ExecuteRequestAndParse(t, env, http.MethodGet, "/bidders/stranger/auctions", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, resp["data"].([]any))
}

func TestListAuctionsStatusFilter(t *testing.T) {
	ended := ActiveAuction("past", 50, 1)
	ended.StartAt = time.Now().UTC().Add(-3 * time.Hour)
	ended.EndAt = time.Now().UTC().Add(-time.Hour)

	env := SetupTestEnvWithAuctions(t, ActiveAuction("live", 50, 1), ended)

	resp, w := ExecuteRequestAndParse(t, env, http.MethodGet, "/auctions?status=active", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	active := resp["data"].([]any)
	require.Len(t, active, 1)
	require.Equal(t, "live", active[0].(map[string]any)["auctionId"])

	resp, w = ExecuteRequestAndParse(t, env, http.MethodGet, "/auctions?status=ended", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp["data"].([]any), 1)
}

func TestPaymentWebhookClosesEndedAuction(t *testing.T) {
	ended := ActiveAuction("done", 50, 1)
	ended.StartAt = time.Now().UTC().Add(-3 * time.Hour)
	ended.EndAt = time.Now().UTC().Add(-time.Hour)

	env := SetupTestEnvWithAuctions(t, ActiveAuction("live", 50, 1), ended)

	// a live auction cannot settle
	_, w := ExecuteRequestAndParse(t, env, http.MethodPost, "/payments/webhook",
		map[string]any{"reference": "live", "status": "paid"}, "")
	require.Equal(t, http.StatusConflict, w.Code)

	resp, w := ExecuteRequestAndParse(t, env, http.MethodPost, "/payments/webhook",
		map[string]any{"reference": "done", "status": "paid"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	closed := resp["data"].(map[string]any)
	require.Equal(t, "closed", closed["status"])

	// closed is sticky on subsequent reads
	resp, w = ExecuteRequestAndParse(t, env, http.MethodGet, "/auctions/done", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "closed", resp["data"].(map[string]any)["status"])
}

func TestBroadcastEndpointReportsFanOut(t *testing.T) {
	env := SetupTestEnv()

	require.NoError(t, env.Registry.Subscribe(context.Background(), model.Connection{
		ConnectionID: "dangling",
		AuctionID:    "a1",
		ConnectedAt:  time.Now().UTC(),
	}))

	// the registry entry has no live socket behind it, so the broadcaster
	// prunes it on the first delivery attempt
	resp, w := ExecuteRequestAndParse(t, env, http.MethodPost, "/internal/broadcast",
		helpers.BroadcastRequest{
			AuctionID: "a1",
			BidData:   model.Bid{BidID: "b1", AuctionID: "a1", BidderID: "user-1", Amount: 600, PlacedAt: time.Now().UTC()},
		}, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Broadcast successful", resp["message"])
	require.Equal(t, 1.0, resp["subscribers"])
	require.Equal(t, 1.0, resp["staleConnectionsRemoved"])

	remaining, err := env.Registry.FindByAuction(context.Background(), "a1")
	require.NoError(t, err)
	require.Empty(t, remaining)
}
