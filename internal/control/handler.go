// Package control exposes the local control API: status introspection,
// unread queries, mark-read, the manual reminder pass, and logout.
package control

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veltadesk/pulse/internal/bus"
	"github.com/veltadesk/pulse/internal/delivery"
	apperrors "github.com/veltadesk/pulse/internal/errors"
	"github.com/veltadesk/pulse/internal/logger"
	"github.com/veltadesk/pulse/internal/sound"
	"github.com/veltadesk/pulse/internal/stream"
	"github.com/veltadesk/pulse/internal/unread"
)

// Handler serves the control API against the running pipeline.
type Handler struct {
	pipeline  *delivery.Pipeline
	tracker   *unread.Tracker
	scanner   *delivery.ReminderScanner
	ingress   *stream.Ingress
	gate      *sound.Gate
	bus       *bus.Bus
	logger    *logger.Logger
	startedAt time.Time

	interactionOnce sync.Once
}

// NewHandler creates the control API handler.
func NewHandler(p *delivery.Pipeline, tr *unread.Tracker, sc *delivery.ReminderScanner, ing *stream.Ingress, g *sound.Gate, b *bus.Bus, log *logger.Logger) *Handler {
	return &Handler{
		pipeline:  p,
		tracker:   tr,
		scanner:   sc,
		ingress:   ing,
		gate:      g,
		bus:       b,
		logger:    log.WithComponent("control"),
		startedAt: time.Now(),
	}
}

// Router assembles the gin router with CORS, request ID, and the
// interaction signal middleware.
func (h *Handler) Router(mode string) *gin.Engine {
	gin.SetMode(mode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.Use(func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = logger.GenerateRequestID()
		}
		ctx := logger.WithRequestID(c.Request.Context(), requestID)
		if path := c.FullPath(); path != "" {
			ctx = logger.WithOperation(ctx, c.Request.Method+" "+path)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)
		c.Next()
	})

	// A control request counts as the session's first user gesture.
	// Scrapes and preflights are machine traffic and do not qualify.
	router.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		h.interactionOnce.Do(func() {
			h.bus.Publish(bus.Event{Topic: bus.TopicInteraction, Time: time.Now()})
			h.logger.Info("first interaction observed, sound gate armed")
		})
		c.Next()
	})

	router.GET("/status", h.Status)
	router.GET("/feed", h.Feed)
	router.GET("/rooms/unread", h.RoomsUnread)
	router.POST("/rooms/:room/read", h.MarkRoomRead)
	router.POST("/notifications/ack-all", h.AckAll)
	router.POST("/reminders/show-all", h.ShowAllReminders)
	router.POST("/session/logout", h.Logout)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.NoRoute(func(c *gin.Context) {
		apperrors.AbortWithNotFound(c, "unknown endpoint", map[string]interface{}{
			"path": c.Request.URL.Path,
		})
	})

	return router
}

// Status reports connection and unread state for operators.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds":    int(time.Since(h.startedAt).Seconds()),
		"reconnect_attempt": h.ingress.Attempt(),
		"feed_size":         len(h.pipeline.Feed()),
		"unread":            h.tracker.Counts(),
	})
}

// Feed returns the retained notification feed, newest first.
func (h *Handler) Feed(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notifications": h.pipeline.Feed()})
}

// RoomsUnread returns per-room unread counts.
func (h *Handler) RoomsUnread(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"unread": h.tracker.Counts()})
}

// MarkRoomRead zeroes a room's unread count and broadcasts the receipt.
func (h *Handler) MarkRoomRead(c *gin.Context) {
	room := c.Param("room")
	if room == "" {
		apperrors.BadRequest(c, "room is required", nil)
		return
	}
	ctx := logger.WithRoom(c.Request.Context(), room)

	if err := h.tracker.MarkRead(ctx, room); err != nil {
		h.logger.LogError(ctx, err, "failed to broadcast read receipt")
		apperrors.Internal(c, "failed to broadcast read receipt", map[string]interface{}{
			"room": room,
		})
		return
	}
	h.logger.WithContext(ctx).Info("room marked read")
	c.JSON(http.StatusOK, gin.H{"room": room, "unread": 0})
}

// AckAll marks every notification read at the backend.
func (h *Handler) AckAll(c *gin.Context) {
	if err := h.pipeline.AckAll(c.Request.Context()); err != nil {
		h.logger.LogError(c.Request.Context(), err, "failed to acknowledge notifications")
		apperrors.Internal(c, "failed to acknowledge notifications", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

// ShowAllReminders runs the manual reminder pass.
func (h *Handler) ShowAllReminders(c *gin.Context) {
	if h.scanner == nil {
		apperrors.NotFound(c, "no reminder sources configured", nil)
		return
	}
	if err := h.scanner.ShowAll(c.Request.Context()); err != nil {
		h.logger.LogError(c.Request.Context(), err, "reminder pass failed")
		apperrors.Internal(c, "reminder pass failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"shown": true})
}

// Logout clears the session's persisted state and stops the transports.
func (h *Handler) Logout(c *gin.Context) {
	if err := h.pipeline.Logout(c.Request.Context()); err != nil {
		h.logger.LogError(c.Request.Context(), err, "logout failed")
		apperrors.Internal(c, "logout failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logged_out": true})
}
