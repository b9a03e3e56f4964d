package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
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

const (
	minHoldMinutes     = 1
	maxHoldMinutes     = 240
	defaultHoldMinutes = 15
)

type ReservationService interface {
	CreateReservation(ctx context.Context, orderID uuid.UUID, lines []domain.ReservationLine, holdMinutes int32) (*domain.Reservation, error)
	ReleaseReservation(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	CommitReservation(ctx context.Context, id uuid.UUID) (bool, error)
	ExpireReservation(ctx context.Context, id uuid.UUID) (bool, error)

	HandleOrderCreated(ctx context.Context, event *domain.OrderCreatedEvent) error
	HandlePaymentSucceeded(ctx context.Context, event *domain.PaymentSucceededEvent) error
	HandlePaymentFailed(ctx context.Context, event *domain.PaymentFailedEvent) error
}

type reservationService struct {
	pool            *pgxpool.Pool
	logger          *zap.Logger
	inventoryRepo   repository.InventoryRepository
	reservationRepo repository.ReservationRepository
	outboxRepo      worker.OutboxRepository
	tracer          trace.Tracer
}

func NewReservationService(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	inventoryRepo repository.InventoryRepository,
	reservationRepo repository.ReservationRepository,
	outboxRepo worker.OutboxRepository,
) ReservationService {
	return &reservationService{
		pool:            pool,
		logger:          logger,
		inventoryRepo:   inventoryRepo,
		reservationRepo: reservationRepo,
		outboxRepo:      outboxRepo,
		tracer:          otel.Tracer("reservation_service"),
	}
}

// CreateReservation admits a hold against available stock, all-or-nothing
// across every line. The ledger rows are locked in product_id order for the
// whole check-then-reserve sequence, so two concurrent reservations for the
// same product serialize and cannot jointly over-reserve.
func (s *reservationService) CreateReservation(ctx context.Context, orderID uuid.UUID, lines []domain.ReservationLine, holdMinutes int32) (*domain.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "ReservationService.CreateReservation")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID.String()),
		attribute.Int("items_count", len(lines)),
	)

	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line item is required", ErrValidation)
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for product %s", ErrValidation, line.ProductID)
		}
	}

	if holdMinutes < minHoldMinutes {
		holdMinutes = minHoldMinutes
	} else if holdMinutes > maxHoldMinutes {
		holdMinutes = maxHoldMinutes
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	items, err := s.inventoryRepo.GetForUpdate(ctx, tx, distinctProductIDs(lines))
	if err != nil {
		return nil, err
	}

	for _, line := range lines {
		item, ok := items[line.ProductID]
		if !ok {
			mylogger.Warn(
				ctx,
				s.logger,
				"Reservation references unknown product",
				zap.String("order_id", orderID.String()),
				zap.String("product_id", line.ProductID.String()),
			)

			return nil, fmt.Errorf("%w: product %s", repository.ErrItemNotFound, line.ProductID)
		}

		if item.Available() < line.Quantity {
			mylogger.Warn(
				ctx,
				s.logger,
				"Insufficient availability for reservation",
				zap.String("order_id", orderID.String()),
				zap.String("product_id", line.ProductID.String()),
				zap.Int32("requested", line.Quantity),
				zap.Int32("available", item.Available()),
			)

			return nil, fmt.Errorf("%w: product %s requested %d, available %d",
				repository.ErrInsufficientStock, line.ProductID, line.Quantity, item.Available())
		}

		item.QuantityReserved += line.Quantity
	}

	for _, item := range items {
		if err := s.inventoryRepo.Update(ctx, tx, item); err != nil {
			return nil, err
		}
	}

	expiresAt := time.Now().UTC().Add(time.Duration(holdMinutes) * time.Minute)
	reservation := &domain.Reservation{
		OrderID:   orderID,
		Status:    domain.ReservationStatusPending,
		ExpiresAt: &expiresAt,
	}
	for _, line := range lines {
		reservation.Items = append(reservation.Items, domain.ReservationItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}

	if err := s.reservationRepo.Insert(ctx, tx, reservation); err != nil {
		return nil, err
	}

	event := &domain.ReservationCreatedEvent{
		ReservationID: reservation.ID,
		OrderID:       reservation.OrderID,
		ExpiresAt:     reservation.ExpiresAt,
		Items:         linePayloads(reservation.Items),
	}
	if err := saveEvent(ctx, tx, s.outboxRepo, "ReservationCreated", "InventoryReservation", reservation.ID.String(), event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Reservation created",
		zap.String("reservation_id", reservation.ID.String()),
		zap.String("order_id", orderID.String()),
	)

	return reservation, nil
}

// ReleaseReservation frees a pending hold back into available stock.
// Terminal released/failed/expired reservations are an idempotent success;
// a confirmed reservation is refused because its stock is already consumed.
func (s *reservationService) ReleaseReservation(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "ReservationService.ReleaseReservation")
	defer span.End()

	span.SetAttributes(
		attribute.String("reservation_id", id.String()),
	)

	return s.finishByID(ctx, id, reason, domain.EventRelease)
}

// ExpireReservation is the sweep's entry point: same release path, but the
// terminal state is Expired so abandoned holds stay distinguishable from
// manual releases.
func (s *reservationService) ExpireReservation(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "ReservationService.ExpireReservation")
	defer span.End()

	span.SetAttributes(
		attribute.String("reservation_id", id.String()),
	)

	return s.finishByID(ctx, id, "expired", domain.EventExpire)
}

// CommitReservation converts held stock into consumed stock, decrementing
// both reserved and on-hand. Already-confirmed is an idempotent success;
// other terminal states are refused.
func (s *reservationService) CommitReservation(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "ReservationService.CommitReservation")
	defer span.End()

	span.SetAttributes(
		attribute.String("reservation_id", id.String()),
	)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	reservation, err := s.reservationRepo.GetForUpdate(ctx, tx, id)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return false, nil
		}

		return false, err
	}

	ok, err := s.commitLocked(ctx, tx, reservation)
	if err != nil || !ok {
		return ok, err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Reservation committed",
		zap.String("reservation_id", id.String()),
	)

	return true, nil
}

func (s *reservationService) HandleOrderCreated(ctx context.Context, event *domain.OrderCreatedEvent) error {
	ctx, span := s.tracer.Start(ctx, "ReservationService.HandleOrderCreated")
	defer span.End()

	lines := make([]domain.ReservationLine, 0, len(event.Items))
	for _, item := range event.Items {
		lines = append(lines, domain.ReservationLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	_, err := s.CreateReservation(ctx, event.OrderID, lines, defaultHoldMinutes)
	if err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Failed to reserve stock for order",
			zap.String("order_id", event.OrderID.String()),
			zap.Error(err),
		)
	}

	return err
}

func (s *reservationService) HandlePaymentSucceeded(ctx context.Context, event *domain.PaymentSucceededEvent) error {
	ctx, span := s.tracer.Start(ctx, "ReservationService.HandlePaymentSucceeded")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	reservation, err := s.reservationRepo.GetPendingByOrderForUpdate(ctx, tx, event.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			mylogger.Warn(
				ctx,
				s.logger,
				"No pending reservation for paid order",
				zap.String("order_id", event.OrderID.String()),
			)

			return nil
		}

		return err
	}

	if _, err := s.commitLocked(ctx, tx, reservation); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *reservationService) HandlePaymentFailed(ctx context.Context, event *domain.PaymentFailedEvent) error {
	ctx, span := s.tracer.Start(ctx, "ReservationService.HandlePaymentFailed")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	reservation, err := s.reservationRepo.GetPendingByOrderForUpdate(ctx, tx, event.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			mylogger.Warn(
				ctx,
				s.logger,
				"No pending reservation for failed payment",
				zap.String("order_id", event.OrderID.String()),
			)

			return nil
		}

		return err
	}

	if _, err := s.finishLocked(ctx, tx, reservation, "payment-failed", domain.EventFail); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// finishByID drives release-like transitions (release, expire) for one
// reservation id inside a fresh transaction.
func (s *reservationService) finishByID(ctx context.Context, id uuid.UUID, reason string, event domain.ReservationEvent) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	reservation, err := s.reservationRepo.GetForUpdate(ctx, tx, id)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return false, nil
		}

		return false, err
	}

	ok, err := s.finishLocked(ctx, tx, reservation, reason, event)
	if err != nil || !ok {
		return ok, err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}

// finishLocked moves a locked reservation into a release-like terminal state
// and returns the held quantities to available stock. Repeat calls on an
// already-released reservation succeed without touching the ledger again.
func (s *reservationService) finishLocked(ctx context.Context, tx pgx.Tx, reservation *domain.Reservation, reason string, event domain.ReservationEvent) (bool, error) {
	switch reservation.Status {
	case domain.ReservationStatusReleased, domain.ReservationStatusFailed, domain.ReservationStatusExpired:
		return true, nil
	case domain.ReservationStatusConfirmed:
		mylogger.Warn(
			ctx,
			s.logger,
			"Attempted to release confirmed reservation",
			zap.String("reservation_id", reservation.ID.String()),
		)

		return false, nil
	}

	nextStatus, err := domain.NextStatus(reservation.Status, event)
	if err != nil {
		return false, fmt.Errorf("reservation %s: %w", reservation.ID, err)
	}

	items, err := s.inventoryRepo.GetForUpdate(ctx, tx, reservationProductIDs(reservation))
	if err != nil {
		return false, err
	}

	for _, line := range reservation.Items {
		item, ok := items[line.ProductID]
		if !ok {
			// ledger row vanished; nothing to give back
			continue
		}

		item.QuantityReserved -= line.Quantity
		if item.QuantityReserved < 0 {
			item.QuantityReserved = 0
		}
	}

	for _, item := range items {
		if err := s.inventoryRepo.Update(ctx, tx, item); err != nil {
			return false, err
		}
	}

	now := time.Now().UTC()
	if err := s.reservationRepo.SetStatus(ctx, tx, reservation.ID, nextStatus, &now, &reason); err != nil {
		return false, err
	}

	releasedEvent := &domain.ReservationReleasedEvent{
		ReservationID: reservation.ID,
		OrderID:       reservation.OrderID,
		Status:        nextStatus,
		Reason:        reason,
	}
	if err := saveEvent(ctx, tx, s.outboxRepo, "ReservationReleased", "InventoryReservation", reservation.ID.String(), releasedEvent); err != nil {
		return false, err
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Reservation released",
		zap.String("reservation_id", reservation.ID.String()),
		zap.String("status", string(nextStatus)),
		zap.String("reason", reason),
	)

	return true, nil
}

// commitLocked consumes the held stock of a locked pending reservation. Any
// mismatch between the reservation and the ledger is a fatal integrity error,
// never silently coerced.
func (s *reservationService) commitLocked(ctx context.Context, tx pgx.Tx, reservation *domain.Reservation) (bool, error) {
	switch reservation.Status {
	case domain.ReservationStatusConfirmed:
		return true, nil
	case domain.ReservationStatusReleased, domain.ReservationStatusFailed, domain.ReservationStatusExpired:
		mylogger.Warn(
			ctx,
			s.logger,
			"Cannot commit terminal reservation",
			zap.String("reservation_id", reservation.ID.String()),
			zap.String("status", string(reservation.Status)),
		)

		return false, nil
	}

	nextStatus, err := domain.NextStatus(reservation.Status, domain.EventConfirm)
	if err != nil {
		return false, fmt.Errorf("reservation %s: %w", reservation.ID, err)
	}

	items, err := s.inventoryRepo.GetForUpdate(ctx, tx, reservationProductIDs(reservation))
	if err != nil {
		return false, err
	}

	for _, line := range reservation.Items {
		item, ok := items[line.ProductID]
		if !ok {
			return false, fmt.Errorf("%w: ledger row missing for product %s of reservation %s",
				ErrDataIntegrity, line.ProductID, reservation.ID)
		}

		if item.QuantityReserved < line.Quantity || item.QuantityOnHand < line.Quantity {
			mylogger.Error(
				ctx,
				s.logger,
				"Reservation and ledger have drifted",
				zap.String("reservation_id", reservation.ID.String()),
				zap.String("product_id", line.ProductID.String()),
				zap.Int32("line_quantity", line.Quantity),
				zap.Int32("on_hand", item.QuantityOnHand),
				zap.Int32("reserved", item.QuantityReserved),
			)

			return false, fmt.Errorf("%w: reservation %s exceeds ledger quantities for product %s",
				ErrDataIntegrity, reservation.ID, line.ProductID)
		}

		item.QuantityReserved -= line.Quantity
		item.QuantityOnHand -= line.Quantity
	}

	for _, item := range items {
		if err := s.inventoryRepo.Update(ctx, tx, item); err != nil {
			return false, err
		}

		if err := emitLowStock(ctx, tx, s.outboxRepo, item); err != nil {
			return false, err
		}
	}

	now := time.Now().UTC()
	if err := s.reservationRepo.SetStatus(ctx, tx, reservation.ID, nextStatus, &now, nil); err != nil {
		return false, err
	}

	committedEvent := &domain.ReservationCommittedEvent{
		ReservationID: reservation.ID,
		OrderID:       reservation.OrderID,
	}
	if err := saveEvent(ctx, tx, s.outboxRepo, "ReservationCommitted", "InventoryReservation", reservation.ID.String(), committedEvent); err != nil {
		return false, err
	}

	return true, nil
}

func (s *reservationService) rollback(ctx context.Context, tx pgx.Tx) {
	shutdownCtx := context.WithoutCancel(ctx)

	if err := tx.Rollback(shutdownCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		mylogger.Warn(shutdownCtx, s.logger, "Failed to rollback transaction", zap.Error(err))
	}
}

func distinctProductIDs(lines []domain.ReservationLine) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	var ids []uuid.UUID
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}

	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})

	return ids
}

func reservationProductIDs(reservation *domain.Reservation) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(reservation.Items))
	var ids []uuid.UUID
	for _, item := range reservation.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}

	return ids
}

func linePayloads(items []domain.ReservationItem) []domain.ReservationLinePayload {
	payloads := make([]domain.ReservationLinePayload, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, domain.ReservationLinePayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	return payloads
}
