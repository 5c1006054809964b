package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"auction-hub/internal/broadcast"
	"auction-hub/utils"

	amqp "github.com/rabbitmq/amqp091-go"
)

// StartBidEventConsumer consumes the bid queue and invokes the broadcaster
// for each event. It runs a reconnect loop with backoff until ctx is
// cancelled; processing errors are logged and the offending message is
// rejected without requeue so the consumer keeps draining.
func StartBidEventConsumer(ctx context.Context, url string, broadcaster *broadcast.Broadcaster) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := amqp.Dial(url)
		if err != nil {
			utils.Warn("bid-consumer: failed to dial broker", map[string]any{
				"error":   err.Error(),
				"backoff": backoff.String(),
			})
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(ctx, conn, broadcaster); err != nil {
			utils.Warn("bid-consumer: consume loop ended, reconnecting", map[string]any{"error": err.Error()})
		}
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		time.Sleep(2 * time.Second)
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, broadcaster *broadcast.Broadcaster) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(BidQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	deliveries, err := ch.Consume(BidQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			var event BidPlacedEvent
			if err := json.Unmarshal(d.Body, &event); err != nil {
				utils.Error("bid-consumer: malformed event", map[string]any{"error": err.Error()})
				_ = d.Reject(false)
				continue
			}
			if _, err := broadcaster.Broadcast(ctx, event.AuctionID, event.Bid); err != nil {
				utils.Error("bid-consumer: broadcast failed", map[string]any{
					"auction_id": event.AuctionID,
					"error":      err.Error(),
				})
				_ = d.Reject(false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
