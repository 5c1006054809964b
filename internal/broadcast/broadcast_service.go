package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"auction-hub/internal/auctionerrors"
	model "auction-hub/internal/models"
	"auction-hub/internal/store"
	"auction-hub/utils"
)

// ActionBidUpdate tags the push message sent after an accepted bid.
const ActionBidUpdate = "bidUpdate"

// defaultConcurrency bounds parallel delivery attempts per broadcast.
const defaultConcurrency = 32

// UpdateMessage is the structured update pushed to each subscribed connection.
type UpdateMessage struct {
	Action    string    `json:"action"`
	AuctionID string    `json:"auctionId"`
	Bid       model.Bid `json:"bid"`
	Timestamp string    `json:"timestamp"`
}

// Result reports the outcome of one fan-out pass.
type Result struct {
	Attempted int `json:"subscribers"`
	Delivered int `json:"delivered"`
	Pruned    int `json:"staleConnectionsRemoved"`
}

// Pusher delivers one message to one connection. A return of
// auctionerrors.ErrConnectionGone marks the connection as permanently gone;
// any other error is treated as transient.
type Pusher interface {
	Push(ctx context.Context, connectionID string, message UpdateMessage) error
}

// Broadcaster resolves the interested connection set for an auction and
// fans a bid update out to every member, pruning connections whose
// transport session no longer exists.
type Broadcaster struct {
	registry    store.ConnectionRegistry
	pusher      Pusher
	concurrency int
}

// NewBroadcaster creates a new Broadcaster instance. concurrency <= 0 picks
// the default delivery parallelism.
func NewBroadcaster(registry store.ConnectionRegistry, pusher Pusher, concurrency int) *Broadcaster {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Broadcaster{
		registry:    registry,
		pusher:      pusher,
		concurrency: concurrency,
	}
}

// Broadcast delivers a bid update to every connection subscribed to the
// auction or to the wildcard target. Delivery attempts run concurrently and
// independently: a failure on one connection never blocks or fails the
// others. Only a registry lookup failure is returned as an error.
func (b *Broadcaster) Broadcast(ctx context.Context, auctionID string, bid model.Bid) (Result, error) {
	specific, err := b.registry.FindByAuction(ctx, auctionID)
	if err != nil {
		return Result{}, fmt.Errorf("broadcast: failed to resolve subscribers for auction %s: %w", auctionID, err)
	}
	wildcard, err := b.registry.FindWildcard(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("broadcast: failed to resolve wildcard subscribers: %w", err)
	}

	// One delivery attempt per handle, even when a connection shows up in
	// both sets.
	targets := make(map[string]model.Connection, len(specific)+len(wildcard))
	for _, c := range append(specific, wildcard...) {
		targets[c.ConnectionID] = c
	}

	message := UpdateMessage{
		Action:    ActionBidUpdate,
		AuctionID: auctionID,
		Bid:       bid,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	var (
		mu        sync.Mutex
		delivered int
		pruned    int
	)
	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup
	for connectionID := range targets {
		wg.Add(1)
		sem <- struct{}{}
		go func(connectionID string) {
			defer wg.Done()
			defer func() { <-sem }()

			err := b.pusher.Push(ctx, connectionID, message)
			switch {
			case err == nil:
				mu.Lock()
				delivered++
				mu.Unlock()
			case errors.Is(err, auctionerrors.ErrConnectionGone):
				// Lazy pruning: the transport session is gone, drop the
				// registry entry.
				if rmErr := b.registry.Remove(ctx, connectionID); rmErr != nil {
					utils.Error("broadcast: failed to prune stale connection", map[string]any{
						"connection_id": connectionID,
						"error":         rmErr.Error(),
					})
				} else {
					mu.Lock()
					pruned++
					mu.Unlock()
				}
			default:
				utils.Warn("broadcast: transient delivery failure", map[string]any{
					"connection_id": connectionID,
					"auction_id":    auctionID,
					"error":         err.Error(),
				})
			}
		}(connectionID)
	}
	wg.Wait()

	result := Result{Attempted: len(targets), Delivered: delivered, Pruned: pruned}
	utils.Info("broadcast: fan-out complete", map[string]any{
		"auction_id": auctionID,
		"attempted":  result.Attempted,
		"delivered":  result.Delivered,
		"pruned":     result.Pruned,
	})
	return result, nil
}

// AsyncNotifier adapts a Broadcaster to the bidding service's fire-and-forget
// notifier contract: the broadcast runs on its own goroutine with its own
// deadline, and a failure is logged, never propagated.
type AsyncNotifier struct {
	broadcaster *Broadcaster
	timeout     time.Duration
}

// NewAsyncNotifier creates a new AsyncNotifier instance
func NewAsyncNotifier(broadcaster *Broadcaster) *AsyncNotifier {
	return &AsyncNotifier{broadcaster: broadcaster, timeout: 30 * time.Second}
}

// BidPlaced requests a broadcast for an accepted bid without blocking the
// bid placement path.
func (n *AsyncNotifier) BidPlaced(ctx context.Context, auction model.Auction, bid model.Bid) {
	// Detach from the request context so the fan-out survives the response.
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	go func() {
		defer cancel()
		if _, err := n.broadcaster.Broadcast(bctx, auction.AuctionID, bid); err != nil {
			utils.Error("notifier: broadcast failed", map[string]any{
				"auction_id": auction.AuctionID,
				"bid_id":     bid.BidID,
				"error":      err.Error(),
			})
		}
	}()
}
