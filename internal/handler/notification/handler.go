package notification

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rikseotools/vence/internal/handler"
	"github.com/rikseotools/vence/internal/service/notification"
	apperrors "github.com/rikseotools/vence/pkg/errors"
)

// Engine is the notification service as seen by the HTTP layer.
type Engine interface {
	GetNotificationFeed(ctx context.Context, userID string) (*notification.Feed, error)
	ResolveAction(ctx context.Context, userID, id, slot string) (string, bool, error)
	ActOn(ctx context.Context, userID, id, slot string) (string, error)
	MarkRead(ctx context.Context, userID, id string) error
	Dismiss(ctx context.Context, userID, id string) error
	DeliverIfEligible(ctx context.Context, userID, id string) (notification.DeliveryResult, error)
	Reset(ctx context.Context, userID string) error
}

type Handler struct {
	engine Engine
}

func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine}
}

type ActionResponse struct {
	URL       string `json:"url,omitempty"`
	Available bool   `json:"available"`
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/users/:user_id/notifications")
	{
		notifications.GET("", h.GetFeed)
		notifications.DELETE("", h.Reset)
		notifications.POST("/:id/read", h.MarkRead)
		notifications.POST("/:id/dismiss", h.Dismiss)
		notifications.POST("/:id/deliver", h.Deliver)
		notifications.GET("/:id/actions/:slot", h.ResolveAction)
		notifications.POST("/:id/actions/:slot", h.ActOn)
	}
}

func (h *Handler) GetFeed(c *gin.Context) {
	feed, err := h.engine.GetNotificationFeed(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(feed))
}

func (h *Handler) MarkRead(c *gin.Context) {
	if err := h.engine.MarkRead(c.Request.Context(), c.Param("user_id"), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Dismiss(c *gin.Context) {
	if err := h.engine.Dismiss(c.Request.Context(), c.Param("user_id"), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ResolveAction(c *gin.Context) {
	url, ok, err := h.engine.ResolveAction(c.Request.Context(), c.Param("user_id"), c.Param("id"), c.Param("slot"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(ActionResponse{URL: url, Available: ok}))
}

// ActOn marks the notification read and answers with the link to follow.
func (h *Handler) ActOn(c *gin.Context) {
	url, err := h.engine.ActOn(c.Request.Context(), c.Param("user_id"), c.Param("id"), c.Param("slot"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(ActionResponse{URL: url, Available: true}))
}

func (h *Handler) Deliver(c *gin.Context) {
	res, err := h.engine.DeliverIfEligible(c.Request.Context(), c.Param("user_id"), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	status := http.StatusOK
	if res.Eligible && !res.Outcome.Success {
		status = http.StatusAccepted
	}
	c.JSON(status, handler.NewSuccessResponse(res))
}

func (h *Handler) Reset(c *gin.Context) {
	if c.Query("confirm") != "true" {
		_ = c.Error(apperrors.BadRequest("reset requires confirm=true", nil))
		return
	}
	if err := h.engine.Reset(c.Request.Context(), c.Param("user_id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
