package transport

import (
	"net/http"

	"github.com/ds124wfegd/smartblood/internal/service"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notifications service.NotificationService
}

func NewNotificationHandler(notifications service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

func (h *NotificationHandler) List(c *gin.Context) {
	list, err := h.notifications.List(c.Request.Context(), actorFrom(c).ProfileID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.notifications.MarkRead(c.Request.Context(), actorFrom(c).ProfileID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "notification marked as read"})
}
