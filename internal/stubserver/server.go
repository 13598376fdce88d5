package stubserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mudler/xlog"
	"github.com/robfig/cron/v3"
)

// New builds the stub backend router: the full chat contract answered by
// demo responders over real storage.
func New(st *Store, jwtSecret string, replyDelay time.Duration) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(requestID())

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		fail(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	h := newHandler(st, replyDelay)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// chat creation admits tokenless callers as the demo user
	r.POST("/chats", authOptional(jwtSecret), h.createChat)

	authed := r.Group("/")
	authed.Use(authRequired(jwtSecret))
	authed.GET("/chats", h.listChats)
	authed.GET("/chats/:id", h.getChat)
	authed.POST("/chats/:id/messages", h.sendMessage)
	authed.POST("/chats/:id/messages/multi", h.sendMessageMulti)
	authed.POST("/chats/:id/messages/stream", h.sendMessageStream)
	authed.GET("/chats/:id/messages", h.listMessages)
	authed.GET("/chats/:id/messages/poll", h.pollMessages)

	return r
}

// StartPruner schedules periodic deletion of idle chats. The returned cron is
// already running; callers own Stop.
func StartPruner(st *Store, schedule string, maxAge time.Duration) (*cron.Cron, error) {
	cr := cron.New()
	_, err := cr.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := st.PruneStale(ctx, maxAge)
		if err != nil {
			xlog.Error("Pruning stale chats failed", "error", err)
			return
		}
		if n > 0 {
			xlog.Info("Pruned stale chats", "count", n)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("stubserver: schedule pruner: %w", err)
	}
	cr.Start()
	return cr, nil
}
