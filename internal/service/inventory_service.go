package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/manu042k/ecommerce-microservices/internal/domain"
	"github.com/manu042k/ecommerce-microservices/internal/repository"
	"github.com/manu042k/ecommerce-microservices/pkg/mylogger"
	"github.com/manu042k/ecommerce-microservices/pkg/outbox/worker"
)

type InventoryService interface {
	Adjust(ctx context.Context, input *domain.AdjustmentInput) (*domain.InventoryItem, error)
	GetInventory(ctx context.Context) ([]domain.InventoryItem, error)
	GetAvailability(ctx context.Context, productIDs []uuid.UUID) ([]domain.AvailabilityEntry, error)
	ListAdjustments(ctx context.Context, productID uuid.UUID, from, to time.Time) ([]domain.InventoryAdjustment, error)
}

type inventoryService struct {
	pool           *pgxpool.Pool
	logger         *zap.Logger
	inventoryRepo  repository.InventoryRepository
	adjustmentRepo repository.AdjustmentRepository
	outboxRepo     worker.OutboxRepository
	tracer         trace.Tracer
}

func NewInventoryService(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	inventoryRepo repository.InventoryRepository,
	adjustmentRepo repository.AdjustmentRepository,
	outboxRepo worker.OutboxRepository,
) InventoryService {
	return &inventoryService{
		pool:           pool,
		logger:         logger,
		inventoryRepo:  inventoryRepo,
		adjustmentRepo: adjustmentRepo,
		outboxRepo:     outboxRepo,
		tracer:         otel.Tracer("inventory_service"),
	}
}

// Adjust applies one administrative quantity change, creating the ledger row
// lazily for an unseen product. The item update and the audit row commit as
// one unit.
func (s *inventoryService) Adjust(ctx context.Context, input *domain.AdjustmentInput) (*domain.InventoryItem, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.Adjust")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", input.ProductID.String()),
		attribute.Int("quantity_delta", int(input.QuantityDelta)),
	)

	if input.QuantityDelta == 0 && input.ReorderPoint == nil && input.SafetyStock == nil {
		return nil, fmt.Errorf("%w: adjustment must change quantity or thresholds", ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		shutdownCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(shutdownCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(shutdownCtx, s.logger, "Failed to rollback transaction", zap.Error(err))
		}
	}()

	items, err := s.inventoryRepo.GetForUpdate(ctx, tx, []uuid.UUID{input.ProductID})
	if err != nil {
		return nil, err
	}

	item, ok := items[input.ProductID]
	if !ok {
		item = &domain.InventoryItem{
			ProductID:   input.ProductID,
			ProductName: input.ProductName,
			Sku:         input.Sku,
		}
		if input.ReorderPoint != nil {
			item.ReorderPoint = *input.ReorderPoint
		}
		if input.SafetyStock != nil {
			item.SafetyStock = *input.SafetyStock
		}

		if err := s.inventoryRepo.Insert(ctx, tx, item); err != nil {
			return nil, err
		}
	}

	newOnHand := item.QuantityOnHand + input.QuantityDelta
	if newOnHand < 0 {
		mylogger.Warn(
			ctx,
			s.logger,
			"Adjustment would drop on-hand below zero",
			zap.String("product_id", input.ProductID.String()),
			zap.Int32("on_hand", item.QuantityOnHand),
			zap.Int32("delta", input.QuantityDelta),
		)

		return nil, fmt.Errorf("%w: cannot reduce product %s below zero", repository.ErrInsufficientStock, input.ProductID)
	}
	if newOnHand < item.QuantityReserved {
		mylogger.Warn(
			ctx,
			s.logger,
			"Adjustment would drop on-hand below reserved",
			zap.String("product_id", input.ProductID.String()),
			zap.Int32("reserved", item.QuantityReserved),
			zap.Int32("delta", input.QuantityDelta),
		)

		return nil, fmt.Errorf("%w: cannot reduce product %s below its reserved quantity %d",
			repository.ErrInsufficientStock, input.ProductID, item.QuantityReserved)
	}

	item.QuantityOnHand = newOnHand
	item.ProductName = input.ProductName
	if input.Sku != "" {
		item.Sku = input.Sku
	}
	if input.ReorderPoint != nil {
		item.ReorderPoint = *input.ReorderPoint
	}
	if input.SafetyStock != nil {
		item.SafetyStock = *input.SafetyStock
	}

	if err := s.inventoryRepo.Update(ctx, tx, item); err != nil {
		return nil, err
	}

	adjustment := &domain.InventoryAdjustment{
		ProductID:     input.ProductID,
		QuantityDelta: input.QuantityDelta,
		Reason:        input.Reason,
		CreatedBy:     input.CreatedBy,
	}

	if err := s.adjustmentRepo.Insert(ctx, tx, adjustment); err != nil {
		return nil, err
	}

	if err := emitLowStock(ctx, tx, s.outboxRepo, item); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Inventory adjusted",
		zap.String("product_id", input.ProductID.String()),
		zap.Int32("delta", input.QuantityDelta),
		zap.String("created_by", input.CreatedBy),
	)

	return item, nil
}

func (s *inventoryService) GetInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.GetInventory")
	defer span.End()

	return s.inventoryRepo.List(ctx)
}

func (s *inventoryService) GetAvailability(ctx context.Context, productIDs []uuid.UUID) ([]domain.AvailabilityEntry, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.GetAvailability")
	defer span.End()

	span.SetAttributes(
		attribute.Int("product_count", len(productIDs)),
	)

	return s.inventoryRepo.GetAvailability(ctx, productIDs)
}

func (s *inventoryService) ListAdjustments(ctx context.Context, productID uuid.UUID, from, to time.Time) ([]domain.InventoryAdjustment, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.ListAdjustments")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID.String()),
	)

	return s.adjustmentRepo.ListByProduct(ctx, productID, from, to)
}

// emitLowStock announces stock dropping to or below the reorder point so a
// replenishment consumer can react.
func emitLowStock(ctx context.Context, tx pgx.Tx, outboxRepo worker.OutboxRepository, item *domain.InventoryItem) error {
	if item.ReorderPoint <= 0 || item.Available() > item.ReorderPoint {
		return nil
	}

	event := &domain.StockBelowReorderPointEvent{
		ProductID:    item.ProductID,
		Sku:          item.Sku,
		Available:    item.Available(),
		ReorderPoint: item.ReorderPoint,
	}

	return saveEvent(ctx, tx, outboxRepo, "StockBelowReorderPoint", "InventoryItem", item.ProductID.String(), event)
}
