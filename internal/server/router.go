package server

import (
	"auction-hub/internal/ws"
	handler "auction-hub/services/auction/handler"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures all Gin routes for the application. gateway may be
// nil when the realtime surface is not wired (some test setups).
func SetupRouter(auctionHandler *handler.AuctionHandler, gateway *ws.Gateway, jwtSecret string) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging
	router.Use(Identity(jwtSecret))     // resolve bearer token to opaque user id

	bids := router.Group("/bids")
	{
		bids.POST("", auctionHandler.PlaceBidHandler)
	}

	auctions := router.Group("/auctions")
	{
		auctions.POST("", RequireIdentity, auctionHandler.CreateAuctionHandler)
		auctions.GET("", auctionHandler.ListAuctionsHandler)
		auctions.GET("/:auction_id", auctionHandler.GetAuctionHandler)
		auctions.POST("/:auction_id/publish", RequireIdentity, auctionHandler.PublishAuctionHandler)
		auctions.GET("/:auction_id/bids", auctionHandler.GetBidsByAuctionHandler)
		auctions.GET("/:auction_id/winning", auctionHandler.GetHighestBidHandler)
		auctions.GET("/:auction_id/images/:image_key", auctionHandler.GetImageURLHandler)
	}

	bidders := router.Group("/bidders")
	{
		bidders.GET("/:bidder_id/auctions", auctionHandler.GetAuctionsByBidderHandler)
	}

	router.POST("/internal/broadcast", auctionHandler.BroadcastHandler)
	router.POST("/payments/webhook", auctionHandler.PaymentWebhookHandler)

	if gateway != nil {
		router.GET("/ws", gateway.HandleWS)
	}

	return router
}
