// Package httpapi exposes notification intake over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"notifier/internal/channel"
	"notifier/internal/dispatcher"
	"notifier/internal/shared"
	"notifier/internal/storage/journal"
)

// Queue accepts dispatch jobs. *dispatcher.Pool implements it.
type Queue interface {
	Submit(ctx context.Context, job dispatcher.Job) (string, error)
	Pending() int
}

// Lookup reads journal entries.
type Lookup interface {
	Get(ctx context.Context, id string) (journal.Delivery, error)
}

var (
	_ Queue  = (*dispatcher.Pool)(nil)
	_ Lookup = journal.Store(nil)
)

// Handler serves the notification endpoints.
type Handler struct {
	channels    channel.Set
	queue       Queue
	lookup      Lookup
	maxAttempts int
	log         *slog.Logger
}

// NewHandler creates a Handler. maxAttempts is used when a request does not
// set max_attempts.
func NewHandler(channels channel.Set, q Queue, l Lookup, maxAttempts int, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{channels: channels, queue: q, lookup: l, maxAttempts: maxAttempts, log: log}
}

type notificationRequest struct {
	Channel     string `json:"channel" binding:"required,oneof=email sms push"`
	Recipient   string `json:"recipient" binding:"max=320"`
	Text        string `json:"text" binding:"required,max=4096"`
	MaxAttempts *int   `json:"max_attempts" binding:"omitempty,min=0,max=20"`
}

// NewRouter builds the gin engine.
func NewRouter(h *Handler, limiter *RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(h.log))

	r.GET("/healthz", h.health)

	v1 := r.Group("/v1")
	if limiter != nil {
		v1.Use(limiter.Middleware())
	}
	v1.POST("/notifications", h.create)
	v1.GET("/notifications/:id", h.get)
	return r
}

func (h *Handler) create(c *gin.Context) {
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind, err := channel.ParseKind(req.Channel)
	if err != nil {
		h.fail(c, err)
		return
	}
	if req.Recipient == "" && kind != channel.KindPush {
		h.fail(c, shared.Wrapf(shared.ErrValidation, "recipient is required for %s", kind))
		return
	}
	ch, err := h.channels.Get(kind)
	if err != nil {
		h.fail(c, shared.Wrapf(shared.ErrValidation, "channel %s is not configured", kind))
		return
	}

	maxAttempts := h.maxAttempts
	if req.MaxAttempts != nil {
		maxAttempts = *req.MaxAttempts
	}

	id, err := h.queue.Submit(c.Request.Context(), dispatcher.Job{
		Channel:     ch,
		Message:     channel.Message{Recipient: req.Recipient, Text: req.Text},
		MaxAttempts: maxAttempts,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

func (h *Handler) get(c *gin.Context) {
	d, err := h.lookup.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "pending": h.queue.Pending()})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", slog.String("path", c.FullPath()), slog.Any("error", err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// StatusOf maps an error to an HTTP status code by its kind.
func StatusOf(err error) int {
	if errors.Is(err, dispatcher.ErrPoolClosed) {
		return http.StatusServiceUnavailable
	}
	switch shared.KindOf(err) {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindDependencyFailure:
		return http.StatusBadGateway
	case shared.KindCanceled, shared.KindTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func requestLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("dur", time.Since(start)),
		)
	}
}
