package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"movievault/internal/auth"
	"movievault/internal/logging"
	"movievault/internal/models"
	"movievault/internal/worker"
)

// EventSubmitter queues inbound events for processing.
type EventSubmitter interface {
	Submit(ev models.Event) error
}

// Probe is a background component that reports liveness.
type Probe interface {
	Alive() bool
	String() string
}

// Handler wires HTTP routes to the event pipeline.
type Handler struct {
	events EventSubmitter
	token  string
	probes []Probe
}

// NewHandler constructs a Handler instance. token guards POST /api/events
// when non-empty.
func NewHandler(events EventSubmitter, token string, probes ...Probe) *Handler {
	return &Handler{
		events: events,
		token:  token,
		probes: probes,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.root)
	router.GET("/healthz", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(auth.Middleware(h.token))
	api.POST("/events", h.postEvent)
}

func (h *Handler) root(c *gin.Context) {
	c.String(http.StatusOK, "Bot is running")
}

func (h *Handler) health(c *gin.Context) {
	var failing []string
	for _, p := range h.probes {
		if !p.Alive() {
			failing = append(failing, p.String())
		}
	}
	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failing": failing})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) postEvent(c *gin.Context) {
	var ev models.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := validateEvent(ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.events.Submit(ev); err != nil {
		switch {
		case errors.Is(err, worker.ErrDispatcherBusy):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		case errors.Is(err, worker.ErrStopped):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		default:
			logging.Error().Err(err).Int64("user_id", ev.UserID).Msg("submit event failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func validateEvent(ev models.Event) error {
	if ev.ChatID == 0 {
		return errors.New("chat_id is required")
	}
	switch ev.Kind {
	case models.EventStart, models.EventText:
	case models.EventNewMembers:
		if len(ev.NewMembers) == 0 {
			return errors.New("new_members is empty")
		}
		return nil
	case models.EventDocument:
		if ev.Document == nil {
			return errors.New("document is required")
		}
	case models.EventPhoto:
		if len(ev.Photos) == 0 {
			return errors.New("photos is required")
		}
	case models.EventCallback:
		if ev.CallbackData == "" {
			return errors.New("callback_data is required")
		}
	default:
		return errors.New("unknown event kind")
	}
	if ev.UserID == 0 {
		return errors.New("user_id is required")
	}
	return nil
}
