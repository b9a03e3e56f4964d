package worker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/manu042k/ecommerce-microservices/internal/repository"
	"github.com/manu042k/ecommerce-microservices/internal/service"
	"github.com/manu042k/ecommerce-microservices/pkg/mylogger"
)

// ExpirySweeper periodically moves pending reservations past their hold
// deadline to Expired, returning their stock. Without it, abandoned
// reservations would hold stock forever.
type ExpirySweeper struct {
	reservationRepo    repository.ReservationRepository
	reservationService service.ReservationService
	logger             *zap.Logger
	interval           time.Duration
	batchSize          int
	tracer             trace.Tracer
}

func NewExpirySweeper(
	reservationRepo repository.ReservationRepository,
	reservationService service.ReservationService,
	logger *zap.Logger,
	interval time.Duration,
	batchSize int,
) *ExpirySweeper {
	return &ExpirySweeper{
		reservationRepo:    reservationRepo,
		reservationService: reservationService,
		logger:             logger,
		interval:           interval,
		batchSize:          batchSize,
		tracer:             otel.Tracer("expiry-sweeper"),
	}
}

func (w *ExpirySweeper) Start(ctx context.Context) {
	mylogger.Info(ctx, w.logger, "Starting reservation expiry sweeper")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, w.logger, "Expiry sweeper stopping")
			return
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				mylogger.Error(
					ctx,
					w.logger,
					"Error sweeping expired reservations",
					zap.Error(err),
				)
			}
		}
	}
}

func (w *ExpirySweeper) sweep(ctx context.Context) error {
	ctx, span := w.tracer.Start(ctx, "ExpirySweeper.sweep")
	defer span.End()

	ids, err := w.reservationRepo.ListExpiredPending(ctx, time.Now().UTC(), w.batchSize)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		return nil
	}

	span.SetAttributes(
		attribute.Int("expired_count", len(ids)),
	)

	for _, id := range ids {
		// each reservation expires in its own transaction; the release path
		// re-checks status under lock, so a concurrent commit wins cleanly
		found, err := w.reservationService.ExpireReservation(ctx, id)
		if err != nil {
			mylogger.Error(
				ctx,
				w.logger,
				"Failed to expire reservation",
				zap.String("reservation_id", id.String()),
				zap.Error(err),
			)

			continue
		}

		if found {
			mylogger.Info(
				ctx,
				w.logger,
				"Reservation expired",
				zap.String("reservation_id", id.String()),
			)
		}
	}

	return nil
}
