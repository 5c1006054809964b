package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"auction-hub/internal/bidding"
	"auction-hub/internal/broadcast"
	"auction-hub/internal/config"
	"auction-hub/internal/events"
	"auction-hub/internal/images"
	"auction-hub/internal/server"
	"auction-hub/internal/store"
	"auction-hub/internal/ws"
	handler "auction-hub/services/auction/handler"
	"auction-hub/utils"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	auctions, bidLog := buildStores(ctx, cfg)
	registry := buildRegistry(ctx, cfg)

	gateway := ws.NewGateway(registry)
	broadcaster := broadcast.NewBroadcaster(registry, gateway, cfg.BroadcastConcurrency)

	var notifier bidding.Notifier
	if cfg.AMQPURL != "" {
		notifier = events.NewPublisher(cfg.AMQPURL)
		go events.StartBidEventConsumer(ctx, cfg.AMQPURL, broadcaster)
	} else {
		notifier = broadcast.NewAsyncNotifier(broadcaster)
	}

	biddingSvc := bidding.NewBiddingService(auctions, bidLog, notifier)

	var signer handler.ImageSignerInterface
	if cfg.S3Bucket != "" {
		s, err := images.NewURLSigner(ctx, cfg.S3Region, cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket)
		if err != nil {
			utils.Warn("image signing disabled", map[string]any{"error": err.Error()})
		} else {
			signer = s
		}
	}

	auctionHandler := handler.NewAuctionHandler(biddingSvc, broadcaster, signer)
	router := server.SetupRouter(auctionHandler, gateway, cfg.JWTSecret)

	addr := ":" + cfg.Port
	fmt.Printf("Starting auction server on %s...\n", addr)
	if err := router.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}
}

// buildStores selects the Postgres store when a DSN is configured and the
// in-memory store otherwise.
func buildStores(ctx context.Context, cfg config.Config) (store.AuctionStore, store.BidLog) {
	if cfg.DatabaseDSN == "" {
		mem := store.NewMemoryStore()
		return mem, mem
	}

	pg, err := store.NewPostgresStore(ctx, cfg.DatabaseDSN)
	if err != nil {
		utils.Fatal("failed to open postgres store", map[string]any{"error": err.Error()})
	}
	return pg, pg
}

// buildRegistry selects the Redis registry when an address is configured and
// reachable, degrading to the in-memory registry otherwise.
func buildRegistry(ctx context.Context, cfg config.Config) store.ConnectionRegistry {
	if cfg.RedisAddr == "" {
		return store.NewMemoryRegistry()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		utils.Warn("redis unreachable, using in-memory connection registry", map[string]any{
			"addr":  cfg.RedisAddr,
			"error": err.Error(),
		})
		return store.NewMemoryRegistry()
	}
	return store.NewRedisRegistry(client)
}
