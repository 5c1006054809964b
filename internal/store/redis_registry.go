package store

import (
	"context"
	"fmt"
	"time"

	model "auction-hub/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry is a ConnectionRegistry backed by Redis, for deployments
// where many gateway processes share one subscriber registry. Each entry is
// a hash keyed by connection ID; a set per subscription target provides the
// index used by fan-out.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry wraps an already-connected client.
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func connKey(connectionID string) string { return "conn:" + connectionID }
func subsKey(target string) string       { return "subs:" + target }

// Subscribe sets or overwrites the subscription target for a connection
func (r *RedisRegistry) Subscribe(ctx context.Context, conn model.Connection) error {
	// Drop the old index entry when the connection retargets.
	oldTarget, err := r.client.HGet(ctx, connKey(conn.ConnectionID), "auction_id").Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("subscribe %s: %w", conn.ConnectionID, err)
	}

	pipe := r.client.TxPipeline()
	if oldTarget != "" && oldTarget != conn.AuctionID {
		pipe.SRem(ctx, subsKey(oldTarget), conn.ConnectionID)
	}
	pipe.HSet(ctx, connKey(conn.ConnectionID), map[string]any{
		"auction_id":   conn.AuctionID,
		"user_id":      conn.UserID,
		"connected_at": conn.ConnectedAt.UTC().Format(time.RFC3339Nano),
	})
	pipe.SAdd(ctx, subsKey(conn.AuctionID), conn.ConnectionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", conn.ConnectionID, err)
	}
	return nil
}

// Remove deletes a connection entry; absent handles are a no-op
func (r *RedisRegistry) Remove(ctx context.Context, connectionID string) error {
	target, err := r.client.HGet(ctx, connKey(connectionID), "auction_id").Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove %s: %w", connectionID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.SRem(ctx, subsKey(target), connectionID)
	pipe.Del(ctx, connKey(connectionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove %s: %w", connectionID, err)
	}
	return nil
}

// FindByAuction returns all connections subscribed to a specific auction
func (r *RedisRegistry) FindByAuction(ctx context.Context, auctionID string) ([]model.Connection, error) {
	ids, err := r.client.SMembers(ctx, subsKey(auctionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("find connections for %s: %w", auctionID, err)
	}

	conns := make([]model.Connection, 0, len(ids))
	for _, id := range ids {
		fields, err := r.client.HGetAll(ctx, connKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("find connections for %s: %w", auctionID, err)
		}
		if len(fields) == 0 {
			// Index entry outlived the hash; self-heal.
			r.client.SRem(ctx, subsKey(auctionID), id)
			continue
		}
		conn := model.Connection{
			ConnectionID: id,
			AuctionID:    fields["auction_id"],
			UserID:       fields["user_id"],
		}
		if at, err := time.Parse(time.RFC3339Nano, fields["connected_at"]); err == nil {
			conn.ConnectedAt = at
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

// FindWildcard returns all connections subscribed to every auction
func (r *RedisRegistry) FindWildcard(ctx context.Context) ([]model.Connection, error) {
	return r.FindByAuction(ctx, model.WildcardAuction)
}
