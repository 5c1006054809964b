package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"auction-hub/internal/broadcast"
	model "auction-hub/internal/models"
	"auction-hub/utils"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher implements the bidding service's notifier over RabbitMQ. Each
// accepted bid becomes one persistent message on the bid queue.
type Publisher struct {
	url string
}

// NewPublisher creates a new Publisher instance
func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

// BidPlaced publishes the broadcast trigger without blocking the caller.
func (p *Publisher) BidPlaced(ctx context.Context, auction model.Auction, bid model.Bid) {
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	go func() {
		defer cancel()
		event := BidPlacedEvent{
			Action:    broadcast.ActionBidUpdate,
			AuctionID: auction.AuctionID,
			Bid:       bid,
		}
		if err := p.publish(bctx, event); err != nil {
			utils.Error("events: failed to publish bid event", map[string]any{
				"auction_id": auction.AuctionID,
				"bid_id":     bid.BidID,
				"error":      err.Error(),
			})
		}
	}()
}

func (p *Publisher) publish(ctx context.Context, event BidPlacedEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Idempotent declare; durable so triggers survive broker restarts.
	if _, err := ch.QueueDeclare(BidQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", BidQueueName, false, false, pub); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
