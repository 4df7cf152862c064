package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dalscooter/concern-service/internal/api/dto"
	"github.com/dalscooter/concern-service/internal/domain"
	"github.com/dalscooter/concern-service/internal/observability"
	"github.com/dalscooter/concern-service/internal/service"
	apperrors "github.com/dalscooter/concern-service/pkg/util/errorutil"
)

// NotificationsHandler publishes caller-rendered emails.
type NotificationsHandler struct {
	notifications *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notifications *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{notifications: notifications}
}

// Send handles POST /send-email.
func (h *NotificationsHandler) Send(c *fiber.Ctx) error {
	var req dto.NotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	err := h.notifications.PublishAccountEvent(c.UserContext(), domain.NotificationEvent{
		RecipientAddress: req.Email,
		Subject:          req.Subject,
		Body:             req.Body,
		Kind:             domain.NotificationAccountEvent,
	}, observability.RequestID(c))
	if err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: "Notification sent"})
}
