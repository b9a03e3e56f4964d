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

type InventoryHandler struct {
	service  service.InventoryService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewInventoryHandler(service service.InventoryService, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

type AdjustmentInput struct {
	ProductID     string `json:"product_id" validate:"required,uuid"`
	ProductName   string `json:"product_name" validate:"required,max=200"`
	Sku           string `json:"sku" validate:"max=64"`
	QuantityDelta int32  `json:"quantity_delta" validate:"gte=-1000000,lte=1000000"`
	ReorderPoint  *int32 `json:"reorder_point" validate:"omitempty,gte=0"`
	SafetyStock   *int32 `json:"safety_stock" validate:"omitempty,gte=0"`
	Reason        string `json:"reason" validate:"max=200"`
}

type InventoryItemResponse struct {
	ID                uuid.UUID `json:"id"`
	ProductID         uuid.UUID `json:"product_id"`
	ProductName       string    `json:"product_name"`
	Sku               string    `json:"sku"`
	QuantityOnHand    int32     `json:"quantity_on_hand"`
	QuantityReserved  int32     `json:"quantity_reserved"`
	AvailableQuantity int32     `json:"available_quantity"`
	ReorderPoint      int32     `json:"reorder_point"`
	SafetyStock       int32     `json:"safety_stock"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toItemResponse(item *domain.InventoryItem) InventoryItemResponse {
	return InventoryItemResponse{
		ID:                item.ID,
		ProductID:         item.ProductID,
		ProductName:       item.ProductName,
		Sku:               item.Sku,
		QuantityOnHand:    item.QuantityOnHand,
		QuantityReserved:  item.QuantityReserved,
		AvailableQuantity: item.Available(),
		ReorderPoint:      item.ReorderPoint,
		SafetyStock:       item.SafetyStock,
		UpdatedAt:         item.UpdatedAt,
	}
}

func (h *InventoryHandler) GetInventory(c *fiber.Ctx) error {
	ctx := c.UserContext()

	items, err := h.service.GetInventory(ctx)
	if err != nil {
		mylogger.Error(ctx, h.logger, "get inventory failed", zap.Error(err))

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load inventory",
		})
	}

	response := make([]InventoryItemResponse, 0, len(items))
	for i := range items {
		response = append(response, toItemResponse(&items[i]))
	}

	return c.JSON(response)
}

func (h *InventoryHandler) Adjust(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var input AdjustmentInput
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

	productID, err := uuid.Parse(input.ProductID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "product_id is not a valid uuid",
		})
	}

	reason := input.Reason
	if reason == "" {
		reason = "manual-adjustment"
	}

	// identity comes from the gateway; auth itself is not this service's job
	actor := c.Get("X-User-Id")
	if actor == "" {
		actor = "system"
	}

	item, err := h.service.Adjust(ctx, &domain.AdjustmentInput{
		ProductID:     productID,
		ProductName:   input.ProductName,
		Sku:           input.Sku,
		QuantityDelta: input.QuantityDelta,
		ReorderPoint:  input.ReorderPoint,
		SafetyStock:   input.SafetyStock,
		Reason:        reason,
		CreatedBy:     actor,
	})
	if err != nil {
		status := mapErrorStatus(err)

		mylogger.Warn(
			ctx,
			h.logger,
			"adjust inventory failed",
			zap.String("product_id", input.ProductID),
			zap.Int("http_status", status),
			zap.Error(err),
		)

		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(toItemResponse(item))
}

func (h *InventoryHandler) ListAdjustments(c *fiber.Ctx) error {
	ctx := c.UserContext()

	productID, err := uuid.Parse(c.Query("product_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "product_id is not a valid uuid",
		})
	}

	from := time.Time{}
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "from must be RFC3339",
			})
		}
	}

	to := time.Now().UTC()
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "to must be RFC3339",
			})
		}
	}

	adjustments, err := h.service.ListAdjustments(ctx, productID, from, to)
	if err != nil {
		mylogger.Error(ctx, h.logger, "list adjustments failed", zap.Error(err))

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load adjustments",
		})
	}

	response := make([]AdjustmentResponse, 0, len(adjustments))
	for _, a := range adjustments {
		response = append(response, AdjustmentResponse{
			ID:            a.ID,
			ProductID:     a.ProductID,
			QuantityDelta: a.QuantityDelta,
			Reason:        a.Reason,
			CreatedBy:     a.CreatedBy,
			CreatedAt:     a.CreatedAt,
		})
	}

	return c.JSON(response)
}

type AdjustmentResponse struct {
	ID            uuid.UUID `json:"id"`
	ProductID     uuid.UUID `json:"product_id"`
	QuantityDelta int32     `json:"quantity_delta"`
	Reason        string    `json:"reason"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}
