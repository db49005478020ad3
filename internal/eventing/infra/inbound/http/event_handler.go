package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/davicafu/orchestrix/internal/eventing/application"
	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
	sharedQuery "github.com/davicafu/orchestrix/internal/shared/infra/platform/query"
	"github.com/davicafu/orchestrix/pkg/utils"
)

// EventHandler exposes the event endpoints.
type EventHandler struct {
	service *application.EventService
}

func NewEventHandler(service *application.EventService) *EventHandler {
	return &EventHandler{service: service}
}

type publishRequest struct {
	EventType string                      `json:"eventType" binding:"required"`
	Data      map[string]interface{}      `json:"data"`
	Metadata  eventDomain.PublishMetadata `json:"metadata"`
}

// Publish endpoint POST /events/publish
func (h *EventHandler) Publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if req.Data == nil {
		req.Data = map[string]interface{}{}
	}

	res, err := h.service.Publish(c.Request.Context(), req.EventType, req.Data, req.Metadata)
	if err != nil {
		var verr *eventDomain.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error(), "missingFields": verr.Missing})
		case errors.Is(err, eventDomain.ErrUnknownEventType):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"eventId":       res.EventID,
		"correlationId": res.CorrelationID,
		"timestamp":     res.Timestamp,
	})
}

// Subscribe endpoint POST /events/subscribe
func (h *EventHandler) Subscribe(c *gin.Context) {
	var req eventDomain.Subscription
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	sub, err := h.service.Subscribe(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, eventDomain.ErrInvalidSubscription) || errors.Is(err, eventDomain.ErrUnknownEventType) {
			utils.SendBadRequest(c, err.Error())
			return
		}
		utils.SendInternalServerError(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "subscriptionId": sub.ID, "subscription": sub})
}

// Query endpoint GET /events/query
func (h *EventHandler) Query(c *gin.Context) {
	limit, offset, ok := parsePage(c)
	if !ok {
		return
	}

	res, err := h.service.Query(c.Request.Context(), application.QueryParams{
		EventType:     c.Query("eventType"),
		CorrelationID: c.Query("correlationId"),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		utils.SendInternalServerError(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}

type replayRequest struct {
	EventType          string    `json:"eventType" binding:"required"`
	FromTimestamp      time.Time `json:"fromTimestamp"`
	ToTimestamp        time.Time `json:"toTimestamp"`
	TargetSubscription string    `json:"targetSubscription" binding:"required"`
}

// Replay endpoint POST /events/replay
func (h *EventHandler) Replay(c *gin.Context) {
	var req replayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	res, err := h.service.Replay(c.Request.Context(), application.ReplayRequest{
		EventType:          req.EventType,
		From:               req.FromTimestamp,
		To:                 req.ToTimestamp,
		TargetSubscription: req.TargetSubscription,
	})
	if err != nil {
		switch {
		case errors.Is(err, eventDomain.ErrSubscriptionNotFound):
			utils.SendNotFound(c, err.Error())
		case errors.Is(err, eventDomain.ErrValidation):
			utils.SendBadRequest(c, err.Error())
		default:
			utils.SendInternalServerError(c, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"replayed":  res.Replayed,
		"succeeded": res.Succeeded,
		"failed":    res.Failed,
	})
}

// ListSubscriptions endpoint GET /events/subscriptions
func (h *EventHandler) ListSubscriptions(c *gin.Context) {
	subs, err := h.service.ListSubscriptions(c.Request.Context())
	if err != nil {
		utils.SendInternalServerError(c, err.Error())
		return
	}
	if subs == nil {
		subs = []eventDomain.Subscription{}
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs, "total": len(subs)})
}

// ListDefinitions endpoint GET /events/definitions
func (h *EventHandler) ListDefinitions(c *gin.Context) {
	defs := h.service.ListDefinitions()
	c.JSON(http.StatusOK, gin.H{"definitions": defs, "total": len(defs)})
}

// Health endpoint GET /events/health
func (h *EventHandler) Health(c *gin.Context) {
	report, err := h.service.Health(c.Request.Context())
	if err != nil {
		utils.SendInternalServerError(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, report)
}

// DeadLetters endpoint GET /events/dead-letters
func (h *EventHandler) DeadLetters(c *gin.Context) {
	limit, offset, ok := parsePage(c)
	if !ok {
		return
	}

	letters, err := h.service.DeadLetters(c.Request.Context(), c.Query("subscriptionId"),
		sharedQuery.OffsetPagination{Limit: limit, Offset: offset})
	if err != nil {
		utils.SendInternalServerError(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"deadLetters": letters, "total": len(letters)})
}

// Stats endpoint GET /events/stats
func (h *EventHandler) Stats(c *gin.Context) {
	from, ok := parseTime(c, "from")
	if !ok {
		return
	}
	to, ok := parseTime(c, "to")
	if !ok {
		return
	}

	counts, err := h.service.Stats(c.Request.Context(), from, to)
	if err != nil {
		if errors.Is(err, eventDomain.ErrAnalyticsDisabled) {
			utils.SendServiceUnavailable(c, err.Error())
			return
		}
		utils.SendInternalServerError(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": counts})
}

func parsePage(c *gin.Context) (int, int, bool) {
	limit, offset := 0, 0
	var err error
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			utils.SendBadRequest(c, "invalid limit")
			return 0, 0, false
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			utils.SendBadRequest(c, "invalid offset")
			return 0, 0, false
		}
	}
	return limit, offset, true
}

func parseTime(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		utils.SendBadRequest(c, "invalid "+key+": expected RFC3339")
		return time.Time{}, false
	}
	return t, true
}
