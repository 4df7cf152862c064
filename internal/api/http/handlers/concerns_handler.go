package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dalscooter/concern-service/internal/api/dto"
	"github.com/dalscooter/concern-service/internal/domain"
	"github.com/dalscooter/concern-service/internal/observability"
	"github.com/dalscooter/concern-service/internal/service"
	apperrors "github.com/dalscooter/concern-service/pkg/util/errorutil"
)

const idempotencyKeyHeader = "Idempotency-Key"

// ConcernsHandler exposes concern intake and lookup.
type ConcernsHandler struct {
	intake *service.IntakeService
}

// NewConcernsHandler constructs handler.
func NewConcernsHandler(intake *service.IntakeService) *ConcernsHandler {
	return &ConcernsHandler{intake: intake}
}

// Submit handles POST /concern/submit.
func (h *ConcernsHandler) Submit(c *fiber.Ctx) error {
	var req dto.ConcernSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	key := req.IdempotencyKey
	if key == "" {
		key = c.Get(idempotencyKeyHeader)
	}

	messageID, err := h.intake.Submit(c.UserContext(), service.ConcernSubmission{
		SubmitterEmail: req.Submitter(),
		BookingRef:     req.BookingRef,
		ConcernText:    req.Text(),
		Type:           req.Type,
		IdempotencyKey: key,
		CorrelationID:  observability.RequestID(c),
	})
	if err != nil {
		return err
	}

	return c.JSON(dto.ConcernSubmitResponse{
		Message:   "Concern submitted successfully",
		MessageID: messageID,
	})
}

// Get handles GET /concerns/:id.
func (h *ConcernsHandler) Get(c *fiber.Ctx) error {
	concern, err := h.intake.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(toConcernResponse(concern))
}

func toConcernResponse(c *domain.Concern) dto.ConcernResponse {
	return dto.ConcernResponse{
		ConcernID:             c.ID,
		SubmitterEmail:        c.SubmitterEmail,
		BookingRef:            c.BookingRef,
		ConcernText:           c.ConcernText,
		Type:                  c.Type,
		SubmittedAt:           c.SubmittedAt,
		AssignedOperatorID:    c.AssignedOperatorID,
		AssignedOperatorEmail: c.AssignedOperatorEmail,
		AssignedOperatorName:  c.AssignedOperatorName,
		Status:                string(c.Status),
		CreatedAt:             c.CreatedAt,
	}
}
