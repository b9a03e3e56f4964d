package handler

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/manu042k/ecommerce-microservices/internal/domain"
	"github.com/manu042k/ecommerce-microservices/internal/service"
	"github.com/manu042k/ecommerce-microservices/pkg/mylogger"
	"github.com/manu042k/ecommerce-microservices/pkg/utils"
)

type ReservationHandler struct {
	reservations service.ReservationService
	inventory    service.InventoryService
	validate     *validator.Validate
	logger       *zap.Logger
}

func NewReservationHandler(reservations service.ReservationService, inventory service.InventoryService, logger *zap.Logger) *ReservationHandler {
	return &ReservationHandler{
		reservations: reservations,
		inventory:    inventory,
		validate:     validator.New(),
		logger:       logger,
	}
}

type ReservationItemInput struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int32  `json:"quantity" validate:"required,gt=0,lte=10000"`
}

type CreateReservationInput struct {
	OrderID     string                 `json:"order_id" validate:"required,uuid"`
	Items       []ReservationItemInput `json:"items" validate:"required,min=1,dive"`
	HoldMinutes int32                  `json:"hold_minutes" validate:"omitempty,gte=1,lte=240"`
}

type ReleaseReservationInput struct {
	Reason string `json:"reason" validate:"max=200"`
}

type AvailabilityInput struct {
	ProductIDs []string `json:"product_ids" validate:"required,min=1,dive,uuid"`
}

type ReservationLineResponse struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int32     `json:"quantity"`
}

type ReservationResponse struct {
	ID            uuid.UUID                 `json:"id"`
	OrderID       uuid.UUID                 `json:"order_id"`
	Status        domain.ReservationStatus  `json:"status"`
	CreatedAt     time.Time                 `json:"created_at"`
	ExpiresAt     *time.Time                `json:"expires_at"`
	CompletedAt   *time.Time                `json:"completed_at"`
	FailureReason *string                   `json:"failure_reason"`
	Items         []ReservationLineResponse `json:"items"`
}

func toReservationResponse(res *domain.Reservation) ReservationResponse {
	lines := make([]ReservationLineResponse, 0, len(res.Items))
	for _, item := range res.Items {
		lines = append(lines, ReservationLineResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	return ReservationResponse{
		ID:            res.ID,
		OrderID:       res.OrderID,
		Status:        res.Status,
		CreatedAt:     res.CreatedAt,
		ExpiresAt:     res.ExpiresAt,
		CompletedAt:   res.CompletedAt,
		FailureReason: res.FailureReason,
		Items:         lines,
	}
}

func (h *ReservationHandler) Create(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var input CreateReservationInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := h.validate.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	orderID, err := uuid.Parse(input.OrderID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "order_id is not a valid uuid",
		})
	}

	lines := make([]domain.ReservationLine, 0, len(input.Items))
	for _, item := range input.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "product_id is not a valid uuid",
			})
		}

		lines = append(lines, domain.ReservationLine{
			ProductID: productID,
			Quantity:  item.Quantity,
		})
	}

	holdMinutes := input.HoldMinutes
	if holdMinutes == 0 {
		holdMinutes = 15
	}

	reservation, err := h.reservations.CreateReservation(ctx, orderID, lines, holdMinutes)
	if err != nil {
		status := mapErrorStatus(err)

		mylogger.Warn(
			ctx,
			h.logger,
			"create reservation failed",
			zap.String("order_id", input.OrderID),
			zap.Int("http_status", status),
			zap.Error(err),
		)

		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(toReservationResponse(reservation))
}

func (h *ReservationHandler) Release(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "reservation id is not a valid uuid",
		})
	}

	var input ReleaseReservationInput
	// body is optional for release
	_ = c.BodyParser(&input)

	reason := input.Reason
	if reason == "" {
		reason = "manual-release"
	}

	found, err := h.reservations.ReleaseReservation(ctx, id, reason)
	if err != nil {
		mylogger.Error(
			ctx,
			h.logger,
			"release reservation failed",
			zap.String("reservation_id", id.String()),
			zap.Error(err),
		)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if !found {
		return c.SendStatus(fiber.StatusNotFound)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ReservationHandler) Commit(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "reservation id is not a valid uuid",
		})
	}

	found, err := h.reservations.CommitReservation(ctx, id)
	if err != nil {
		status := mapErrorStatus(err)

		mylogger.Error(
			ctx,
			h.logger,
			"commit reservation failed",
			zap.String("reservation_id", id.String()),
			zap.Int("http_status", status),
			zap.Error(err),
		)

		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if !found {
		return c.SendStatus(fiber.StatusNotFound)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ReservationHandler) GetAvailability(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var input AvailabilityInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := h.validate.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	productIDs := make([]uuid.UUID, 0, len(input.ProductIDs))
	for _, raw := range input.ProductIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "product_ids must be valid uuids",
			})
		}

		productIDs = append(productIDs, id)
	}

	entries, err := h.inventory.GetAvailability(ctx, productIDs)
	if err != nil {
		mylogger.Error(ctx, h.logger, "get availability failed", zap.Error(err))

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load availability",
		})
	}

	if entries == nil {
		entries = []domain.AvailabilityEntry{}
	}

	return c.JSON(entries)
}
