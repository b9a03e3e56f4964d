package repository

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
	"github.com/manu042k/ecommerce-microservices/pkg/mylogger"
)

type ReservationRepository interface {
	Insert(ctx context.Context, tx pgx.Tx, reservation *domain.Reservation) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Reservation, error)
	GetPendingByOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*domain.Reservation, error)
	SetStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.ReservationStatus, completedAt *time.Time, failureReason *string) error
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

type reservationRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewReservationRepository(pool *pgxpool.Pool, logger *zap.Logger) ReservationRepository {
	return &reservationRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("reservation_repository"),
	}
}

func (r *reservationRepo) Insert(ctx context.Context, tx pgx.Tx, reservation *domain.Reservation) error {
	ctx, span := r.tracer.Start(ctx, "ReservationRepository.Insert")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", reservation.OrderID.String()),
		attribute.Int("items_count", len(reservation.Items)),
	)

	queryReservation := `
		INSERT INTO inventory_reservations (order_id, status, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	if err := tx.QueryRow(
		ctx,
		queryReservation,
		reservation.OrderID,
		string(reservation.Status),
		reservation.ExpiresAt,
	).Scan(
		&reservation.ID,
		&reservation.CreatedAt,
	); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert reservation",
			zap.String("order_id", reservation.OrderID.String()),
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert reservation: %w", err)
	}

	queryItem := `
		INSERT INTO inventory_reservation_items (reservation_id, product_id, quantity)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	for i := range reservation.Items {
		item := &reservation.Items[i]
		item.ReservationID = reservation.ID

		if err := tx.QueryRow(
			ctx,
			queryItem,
			item.ReservationID,
			item.ProductID,
			item.Quantity,
		).Scan(&item.ID); err != nil {
			span.RecordError(err)

			return fmt.Errorf("failed to insert reservation item: %w", err)
		}
	}

	return nil
}

// GetForUpdate locks the reservation row so concurrent release/commit/expiry
// calls serialize on it, then loads its line items.
func (r *reservationRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Reservation, error) {
	ctx, span := r.tracer.Start(ctx, "ReservationRepository.GetForUpdate")
	defer span.End()

	span.SetAttributes(
		attribute.String("reservation_id", id.String()),
	)

	query := `
		SELECT id, order_id, status, created_at, expires_at, completed_at, failure_reason
		FROM inventory_reservations
		WHERE id = $1
		FOR UPDATE
	`

	return r.scanReservation(ctx, tx, tx.QueryRow(ctx, query, id))
}

func (r *reservationRepo) GetPendingByOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*domain.Reservation, error) {
	ctx, span := r.tracer.Start(ctx, "ReservationRepository.GetPendingByOrderForUpdate")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID.String()),
	)

	query := `
		SELECT id, order_id, status, created_at, expires_at, completed_at, failure_reason
		FROM inventory_reservations
		WHERE order_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`

	return r.scanReservation(ctx, tx, tx.QueryRow(ctx, query, orderID))
}

func (r *reservationRepo) scanReservation(ctx context.Context, tx pgx.Tx, row pgx.Row) (*domain.Reservation, error) {
	var res domain.Reservation
	if err := row.Scan(
		&res.ID,
		&res.OrderID,
		&res.Status,
		&res.CreatedAt,
		&res.ExpiresAt,
		&res.CompletedAt,
		&res.FailureReason,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}

		return nil, fmt.Errorf("failed to scan reservation: %w", err)
	}

	itemsQuery := `
		SELECT id, reservation_id, product_id, quantity
		FROM inventory_reservation_items
		WHERE reservation_id = $1
		ORDER BY product_id
	`

	rows, err := tx.Query(ctx, itemsQuery, res.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservation items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.ReservationItem
		if err := rows.Scan(&item.ID, &item.ReservationID, &item.ProductID, &item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan reservation item: %w", err)
		}

		res.Items = append(res.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &res, nil
}

func (r *reservationRepo) SetStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.ReservationStatus, completedAt *time.Time, failureReason *string) error {
	ctx, span := r.tracer.Start(ctx, "ReservationRepository.SetStatus")
	defer span.End()

	span.SetAttributes(
		attribute.String("reservation_id", id.String()),
		attribute.String("status", string(status)),
	)

	query := `
		UPDATE inventory_reservations
		SET status = $1, completed_at = $2, failure_reason = $3
		WHERE id = $4
	`

	commandTag, err := tx.Exec(ctx, query, string(status), completedAt, failureReason, id)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to update reservation status",
			zap.String("reservation_id", id.String()),
			zap.Error(err),
		)

		return fmt.Errorf("failed to update reservation status: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrReservationNotFound
	}

	return nil
}

// ListExpiredPending feeds the expiry sweep. Plain read: the sweep re-checks
// status under a row lock before touching anything.
func (r *reservationRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	ctx, span := r.tracer.Start(ctx, "ReservationRepository.ListExpiredPending")
	defer span.End()

	query := `
		SELECT id
		FROM inventory_reservations
		WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("failed to query expired reservations: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan reservation id: %w", err)
		}

		ids = append(ids, id)
	}

	span.SetAttributes(
		attribute.Int("result_count", len(ids)),
	)

	return ids, rows.Err()
}
