package repository

import (
	"context"
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
	"github.com/manu042k/ecommerce-microservices/pkg/mylogger"
)

type AdjustmentRepository interface {
	Insert(ctx context.Context, tx pgx.Tx, adjustment *domain.InventoryAdjustment) error
	ListByProduct(ctx context.Context, productID uuid.UUID, from, to time.Time) ([]domain.InventoryAdjustment, error)
}

type adjustmentRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewAdjustmentRepository(pool *pgxpool.Pool, logger *zap.Logger) AdjustmentRepository {
	return &adjustmentRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("adjustment_repository"),
	}
}

// Insert appends one audit row. Adjustments are never updated or deleted.
func (r *adjustmentRepo) Insert(ctx context.Context, tx pgx.Tx, adjustment *domain.InventoryAdjustment) error {
	ctx, span := r.tracer.Start(ctx, "AdjustmentRepository.Insert")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", adjustment.ProductID.String()),
		attribute.Int("quantity_delta", int(adjustment.QuantityDelta)),
	)

	query := `
		INSERT INTO inventory_adjustments (product_id, quantity_delta, reason, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	if err := tx.QueryRow(
		ctx,
		query,
		adjustment.ProductID,
		adjustment.QuantityDelta,
		adjustment.Reason,
		adjustment.CreatedBy,
	).Scan(
		&adjustment.ID,
		&adjustment.CreatedAt,
	); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert adjustment",
			zap.String("product_id", adjustment.ProductID.String()),
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert adjustment: %w", err)
	}

	return nil
}

func (r *adjustmentRepo) ListByProduct(ctx context.Context, productID uuid.UUID, from, to time.Time) ([]domain.InventoryAdjustment, error) {
	ctx, span := r.tracer.Start(ctx, "AdjustmentRepository.ListByProduct")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID.String()),
	)

	query := `
		SELECT id, product_id, quantity_delta, reason, created_by, created_at
		FROM inventory_adjustments
		WHERE product_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, productID, from, to)
	if err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("failed to query adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []domain.InventoryAdjustment
	for rows.Next() {
		var a domain.InventoryAdjustment
		if err := rows.Scan(
			&a.ID,
			&a.ProductID,
			&a.QuantityDelta,
			&a.Reason,
			&a.CreatedBy,
			&a.CreatedAt,
		); err != nil {
			span.RecordError(err)

			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}

		adjustments = append(adjustments, a)
	}

	return adjustments, rows.Err()
}
