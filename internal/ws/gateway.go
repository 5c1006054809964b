package ws

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"auction-hub/internal/auctionerrors"
	"auction-hub/internal/broadcast"
	model "auction-hub/internal/models"
	"auction-hub/internal/store"
	"auction-hub/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// ClientMessage is what subscribers send over the socket.
type ClientMessage struct {
	Action    string `json:"action"`
	AuctionID string `json:"auctionId"`
}

// conn pairs a socket with a write lock; gorilla connections do not allow
// concurrent writers.
type conn struct {
	sock *websocket.Conn
	mu   sync.Mutex
}

// Gateway owns the live sockets of this process and keeps the shared
// ConnectionRegistry in sync with them. Subscription state lives in the
// registry, never here, so fan-out keeps working when the registry is
// shared between processes.
type Gateway struct {
	upgrader websocket.Upgrader
	registry store.ConnectionRegistry

	mu    sync.RWMutex
	conns map[string]*conn
}

// NewGateway creates a new Gateway instance
func NewGateway(registry store.ConnectionRegistry) *Gateway {
	return &Gateway{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		registry: registry,
		conns:    make(map[string]*conn),
	}
}

// HandleWS upgrades the request and runs the subscribe loop until the
// client disconnects. An auction_id query parameter sets an initial
// subscription; "all" subscribes to every auction.
func (g *Gateway) HandleWS(c *gin.Context) {
	sock, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.Warn("ws: upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	connectionID := utils.GenerateID()
	userID, _ := c.Get("user_id")
	userIDStr, _ := userID.(string)

	g.mu.Lock()
	g.conns[connectionID] = &conn{sock: sock}
	g.mu.Unlock()

	utils.Info("ws: connection opened", map[string]any{
		"connection_id": connectionID,
		"user_id":       userIDStr,
	})

	ctx := c.Request.Context()
	if target := c.Query("auction_id"); target != "" {
		g.subscribe(ctx, connectionID, target, userIDStr)
	}

	for {
		var msg ClientMessage
		if err := sock.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Action {
		case "subscribe":
			if msg.AuctionID == "" {
				utils.Warn("ws: subscribe without auctionId", map[string]any{"connection_id": connectionID})
				continue
			}
			g.subscribe(ctx, connectionID, msg.AuctionID, userIDStr)
		case "unsubscribe":
			if err := g.registry.Remove(ctx, connectionID); err != nil {
				utils.Error("ws: unsubscribe failed", map[string]any{
					"connection_id": connectionID,
					"error":         err.Error(),
				})
			}
		default:
			utils.Warn("ws: unknown action", map[string]any{
				"connection_id": connectionID,
				"action":        msg.Action,
			})
		}
	}

	g.drop(connectionID)
	if err := g.registry.Remove(context.WithoutCancel(ctx), connectionID); err != nil {
		utils.Error("ws: failed to remove connection on disconnect", map[string]any{
			"connection_id": connectionID,
			"error":         err.Error(),
		})
	}
	utils.Info("ws: connection closed", map[string]any{"connection_id": connectionID})
}

func (g *Gateway) subscribe(ctx context.Context, connectionID, target, userID string) {
	err := g.registry.Subscribe(ctx, model.Connection{
		ConnectionID: connectionID,
		AuctionID:    target,
		UserID:       userID,
		ConnectedAt:  time.Now().UTC(),
	})
	if err != nil {
		utils.Error("ws: subscribe failed", map[string]any{
			"connection_id": connectionID,
			"auction_id":    target,
			"error":         err.Error(),
		})
		return
	}
	utils.Info("ws: subscribed", map[string]any{
		"connection_id": connectionID,
		"auction_id":    target,
	})
}

func (g *Gateway) drop(connectionID string) {
	g.mu.Lock()
	if c, ok := g.conns[connectionID]; ok {
		c.sock.Close()
		delete(g.conns, connectionID)
	}
	g.mu.Unlock()
}

// Push delivers one update message to one connection. A handle this process
// does not hold, or a failed write on a dead socket, reports
// ErrConnectionGone so the broadcaster prunes the registry entry; a write
// timeout is transient and the entry is retained.
func (g *Gateway) Push(_ context.Context, connectionID string, message broadcast.UpdateMessage) error {
	g.mu.RLock()
	c, ok := g.conns[connectionID]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("push to %s: %w", connectionID, auctionerrors.ErrConnectionGone)
	}

	c.mu.Lock()
	c.sock.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.sock.WriteJSON(message)
	c.mu.Unlock()
	if err == nil {
		return nil
	}

	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return fmt.Errorf("push to %s: %w", connectionID, err)
	}
	g.drop(connectionID)
	return fmt.Errorf("push to %s: %v: %w", connectionID, err, auctionerrors.ErrConnectionGone)
}
