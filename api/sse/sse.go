package sse

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Fixen7/lifequest-app/cache"
	"github.com/Fixen7/lifequest-app/game/player"
	mw "github.com/Fixen7/lifequest-app/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const keepaliveInterval = 30 * time.Second

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub    cache.PubSub
	logger    *zap.Logger
	keepalive time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, logger: logger, keepalive: keepaliveInterval, done: make(chan struct{})}
}

// Shutdown ends every open stream; register it with
// http.Server.RegisterOnShutdown.
func (h *Handler) Shutdown() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ServeSSE handles GET /sse?access_token=<jwt>. It must run after mw.Auth.
// Every notification published for the user is streamed as an event named
// after its kind (level_up, achievement, needs_rest, stats, ...).
func (h *Handler) ServeSSE(c *gin.Context) {
	userID := mw.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, player.NotifyChannel(userID))
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.String("user_id", userID), zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	// Set SSE headers.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			n, err := player.DecodeNotification(msg.Payload)
			if err != nil {
				h.logger.Warn("dropping malformed notification", zap.String("user_id", userID), zap.Error(err))
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", n.Kind, msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-subCtx.Done():
			return
		case <-h.done:
			return
		}
	}
}
