package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"auction-hub/internal/bidding"
	"auction-hub/internal/broadcast"
	model "auction-hub/internal/models"
	"auction-hub/internal/server"
	"auction-hub/internal/store"
	"auction-hub/internal/ws"
	handler "auction-hub/services/auction/handler"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testJWTSecret = "integration-secret"

// TestEnv wires the full HTTP surface against in-memory storage.
type TestEnv struct {
	Router   *gin.Engine
	Store    *store.MemoryStore
	Registry *store.MemoryRegistry
	Gateway  *ws.Gateway
}

// SetupTestEnv initializes the router with in-memory storage for integration
// testing. Fan-out runs through the real broadcaster and gateway.
func SetupTestEnv() *TestEnv {
	gin.SetMode(gin.TestMode)

	memStore := store.NewMemoryStore()
	registry := store.NewMemoryRegistry()
	gateway := ws.NewGateway(registry)
	broadcaster := broadcast.NewBroadcaster(registry, gateway, 0)
	notifier := broadcast.NewAsyncNotifier(broadcaster)
	service := bidding.NewBiddingService(memStore, memStore, notifier)
	auctionHandler := handler.NewAuctionHandler(service, broadcaster, nil)

	return &TestEnv{
		Router:   server.SetupRouter(auctionHandler, gateway, testJWTSecret),
		Store:    memStore,
		Registry: registry,
		Gateway:  gateway,
	}
}

// SetupTestEnvWithAuctions seeds the store with auctions before wiring.
func SetupTestEnvWithAuctions(t *testing.T, auctions ...model.Auction) *TestEnv {
	t.Helper()
	env := SetupTestEnv()
	for _, a := range auctions {
		if err := env.Store.CreateAuction(context.Background(), a); err != nil {
			t.Fatalf("failed to seed auction %s: %v", a.AuctionID, err)
		}
	}
	return env
}

// MintToken issues a signed bearer token for the given user.
func MintToken(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// ExecuteRequestAndParse executes an HTTP request on the router and parses the
// JSON response. token, when non-empty, is sent as a bearer credential.
func ExecuteRequestAndParse(t *testing.T, env *TestEnv, method, url string, body any, token string) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error
	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	env.Router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

// ActiveAuction builds a published auction whose window covers now.
func ActiveAuction(auctionID string, startingBid, increment float64) model.Auction {
	now := time.Now().UTC()
	return model.Auction{
		AuctionID:    auctionID,
		SellerID:     "seller-1",
		Title:        "Test piece " + auctionID,
		Location:     "Cape Town",
		StartingBid:  startingBid,
		BidIncrement: increment,
		CurrentBid:   startingBid,
		Status:       model.StatusPublished,
		StartAt:      now.Add(-time.Hour),
		EndAt:        now.Add(time.Hour),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
