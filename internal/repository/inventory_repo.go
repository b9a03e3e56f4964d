package repository

import (
	"context"
	"errors"
	"fmt"

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

type InventoryRepository interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, productIDs []uuid.UUID) (map[uuid.UUID]*domain.InventoryItem, error)
	Insert(ctx context.Context, tx pgx.Tx, item *domain.InventoryItem) error
	Update(ctx context.Context, tx pgx.Tx, item *domain.InventoryItem) error
	List(ctx context.Context) ([]domain.InventoryItem, error)
	GetAvailability(ctx context.Context, productIDs []uuid.UUID) ([]domain.AvailabilityEntry, error)
}

type inventoryRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewInventoryRepository(pool *pgxpool.Pool, logger *zap.Logger) InventoryRepository {
	return &inventoryRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("inventory_repository"),
	}
}

const itemColumns = `
	id, product_id, product_name, sku,
	quantity_on_hand, quantity_reserved, reorder_point, safety_stock,
	created_at, updated_at
`

func scanItem(row pgx.Row, item *domain.InventoryItem) error {
	return row.Scan(
		&item.ID,
		&item.ProductID,
		&item.ProductName,
		&item.Sku,
		&item.QuantityOnHand,
		&item.QuantityReserved,
		&item.ReorderPoint,
		&item.SafetyStock,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
}

// GetForUpdate locks the ledger rows for the given products. Rows are locked
// in product_id order so concurrent multi-item reservations cannot deadlock.
func (r *inventoryRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, productIDs []uuid.UUID) (map[uuid.UUID]*domain.InventoryItem, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.GetForUpdate")
	defer span.End()

	span.SetAttributes(
		attribute.Int("product_count", len(productIDs)),
	)

	ids := make([]string, len(productIDs))
	for i, id := range productIDs {
		ids[i] = id.String()
	}

	query := `
		SELECT ` + itemColumns + `
		FROM inventory_items
		WHERE product_id = ANY($1::uuid[])
		ORDER BY product_id
		FOR UPDATE
	`

	rows, err := tx.Query(ctx, query, ids)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to lock inventory items",
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to lock inventory items: %w", err)
	}
	defer rows.Close()

	result := make(map[uuid.UUID]*domain.InventoryItem, len(productIDs))
	for rows.Next() {
		var item domain.InventoryItem
		if err := scanItem(rows, &item); err != nil {
			span.RecordError(err)

			return nil, fmt.Errorf("failed to scan inventory item: %w", err)
		}

		result[item.ProductID] = &item
	}

	return result, rows.Err()
}

func (r *inventoryRepo) Insert(ctx context.Context, tx pgx.Tx, item *domain.InventoryItem) error {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.Insert")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", item.ProductID.String()),
	)

	query := `
		INSERT INTO inventory_items
			(product_id, product_name, sku, quantity_on_hand, quantity_reserved, reorder_point, safety_stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	if err := tx.QueryRow(
		ctx,
		query,
		item.ProductID,
		item.ProductName,
		item.Sku,
		item.QuantityOnHand,
		item.QuantityReserved,
		item.ReorderPoint,
		item.SafetyStock,
	).Scan(
		&item.ID,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert inventory item",
			zap.String("product_id", item.ProductID.String()),
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert inventory item: %w", err)
	}

	return nil
}

func (r *inventoryRepo) Update(ctx context.Context, tx pgx.Tx, item *domain.InventoryItem) error {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.Update")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", item.ProductID.String()),
		attribute.Int("quantity_on_hand", int(item.QuantityOnHand)),
		attribute.Int("quantity_reserved", int(item.QuantityReserved)),
	)

	query := `
		UPDATE inventory_items
		SET product_name = $1,
			sku = $2,
			quantity_on_hand = $3,
			quantity_reserved = $4,
			reorder_point = $5,
			safety_stock = $6,
			updated_at = NOW()
		WHERE product_id = $7
		RETURNING updated_at
	`

	if err := tx.QueryRow(
		ctx,
		query,
		item.ProductName,
		item.Sku,
		item.QuantityOnHand,
		item.QuantityReserved,
		item.ReorderPoint,
		item.SafetyStock,
		item.ProductID,
	).Scan(&item.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(
				ctx,
				r.logger,
				"Inventory item not found",
				zap.String("product_id", item.ProductID.String()),
			)

			return ErrItemNotFound
		}

		span.RecordError(err)

		return fmt.Errorf("failed to update inventory item: %w", err)
	}

	return nil
}

func (r *inventoryRepo) List(ctx context.Context) ([]domain.InventoryItem, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.List")
	defer span.End()

	query := `
		SELECT ` + itemColumns + `
		FROM inventory_items
		ORDER BY product_name
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("failed to query inventory items: %w", err)
	}
	defer rows.Close()

	var items []domain.InventoryItem
	for rows.Next() {
		var item domain.InventoryItem
		if err := scanItem(rows, &item); err != nil {
			span.RecordError(err)

			return nil, fmt.Errorf("failed to scan inventory item: %w", err)
		}

		items = append(items, item)
	}

	return items, rows.Err()
}

// GetAvailability reads committed ledger state. Unknown product ids are
// omitted from the result, not errored.
func (r *inventoryRepo) GetAvailability(ctx context.Context, productIDs []uuid.UUID) ([]domain.AvailabilityEntry, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.GetAvailability")
	defer span.End()

	span.SetAttributes(
		attribute.Int("product_count", len(productIDs)),
	)

	if len(productIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(productIDs))
	for i, id := range productIDs {
		ids[i] = id.String()
	}

	query := `
		SELECT product_id, quantity_on_hand, quantity_reserved
		FROM inventory_items
		WHERE product_id = ANY($1::uuid[])
	`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("failed to query availability: %w", err)
	}
	defer rows.Close()

	var entries []domain.AvailabilityEntry
	for rows.Next() {
		var e domain.AvailabilityEntry
		if err := rows.Scan(&e.ProductID, &e.QuantityOnHand, &e.QuantityReserved); err != nil {
			span.RecordError(err)

			return nil, fmt.Errorf("failed to scan availability row: %w", err)
		}

		e.AvailableQuantity = e.QuantityOnHand - e.QuantityReserved
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
