package service_test

import (
	"time"

	"github.com/google/uuid"

	"github.com/manu042k/ecommerce-microservices/internal/domain"
	"github.com/manu042k/ecommerce-microservices/internal/repository"
	"github.com/manu042k/ecommerce-microservices/internal/service"
)

func (s *IntegrationTestSuite) TestAdjust_CreatesItemLazily() {
	productID := uuid.New()

	item, err := s.InventoryService.Adjust(s.Ctx, &domain.AdjustmentInput{
		ProductID:     productID,
		ProductName:   "Vinyl Record",
		Sku:           "VR-001",
		QuantityDelta: 100,
		Reason:        "initial-stock",
		CreatedBy:     "ops",
	})
	s.Require().NoError(err)
	s.Require().Equal(int32(100), item.QuantityOnHand)
	s.Require().Equal(int32(0), item.QuantityReserved)

	onHand, reserved := s.itemQuantities(productID)
	s.Require().Equal(int32(100), onHand)
	s.Require().Equal(int32(0), reserved)

	var auditCount int
	err = s.DbPool.QueryRow(
		s.Ctx,
		`SELECT COUNT(*) FROM inventory_adjustments WHERE product_id = $1`,
		productID,
	).Scan(&auditCount)
	s.Require().NoError(err)
	s.Require().Equal(1, auditCount)
}

func (s *IntegrationTestSuite) TestAdjust_BelowZeroFails() {
	productID := uuid.New()
	s.seedItem(productID, 100, 0)

	_, err := s.InventoryService.Adjust(s.Ctx, &domain.AdjustmentInput{
		ProductID:     productID,
		ProductName:   "Test Product",
		QuantityDelta: -1000,
		Reason:        "shrinkage",
		CreatedBy:     "ops",
	})
	s.Require().ErrorIs(err, repository.ErrInsufficientStock)

	// nothing applied, no audit row written
	onHand, reserved := s.itemQuantities(productID)
	s.Require().Equal(int32(100), onHand)
	s.Require().Equal(int32(0), reserved)

	var auditCount int
	err = s.DbPool.QueryRow(
		s.Ctx,
		`SELECT COUNT(*) FROM inventory_adjustments WHERE product_id = $1`,
		productID,
	).Scan(&auditCount)
	s.Require().NoError(err)
	s.Require().Zero(auditCount)
}

func (s *IntegrationTestSuite) TestAdjust_BelowReservedFails() {
	productID := uuid.New()
	s.seedItem(productID, 100, 50)

	_, err := s.InventoryService.Adjust(s.Ctx, &domain.AdjustmentInput{
		ProductID:     productID,
		ProductName:   "Test Product",
		QuantityDelta: -80,
		Reason:        "shrinkage",
		CreatedBy:     "ops",
	})
	s.Require().ErrorIs(err, repository.ErrInsufficientStock)

	onHand, reserved := s.itemQuantities(productID)
	s.Require().Equal(int32(100), onHand)
	s.Require().Equal(int32(50), reserved)
}

func (s *IntegrationTestSuite) TestAdjust_NoopInputRejected() {
	_, err := s.InventoryService.Adjust(s.Ctx, &domain.AdjustmentInput{
		ProductID:   uuid.New(),
		ProductName: "Test Product",
		Reason:      "nothing",
		CreatedBy:   "ops",
	})
	s.Require().ErrorIs(err, service.ErrValidation)
}

func (s *IntegrationTestSuite) TestAdjust_ThresholdOnlyUpdate() {
	productID := uuid.New()
	s.seedItem(productID, 20, 0)

	reorderPoint := int32(5)
	item, err := s.InventoryService.Adjust(s.Ctx, &domain.AdjustmentInput{
		ProductID:    productID,
		ProductName:  "Test Product",
		ReorderPoint: &reorderPoint,
		Reason:       "set-reorder-point",
		CreatedBy:    "ops",
	})
	s.Require().NoError(err)
	s.Require().Equal(int32(5), item.ReorderPoint)
	s.Require().Equal(int32(20), item.QuantityOnHand)
}

func (s *IntegrationTestSuite) TestAdjust_LowStockEventEmitted() {
	productID := uuid.New()
	reorderPoint := int32(10)

	_, err := s.InventoryService.Adjust(s.Ctx, &domain.AdjustmentInput{
		ProductID:     productID,
		ProductName:   "Test Product",
		QuantityDelta: 8,
		ReorderPoint:  &reorderPoint,
		Reason:        "initial-stock",
		CreatedBy:     "ops",
	})
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		var publishedAt *time.Time
		err := s.DbPool.QueryRow(
			s.Ctx,
			`SELECT published_at FROM outbox WHERE aggregate_id = $1 AND event_type = 'StockBelowReorderPoint'`,
			productID.String(),
		).Scan(&publishedAt)

		return err == nil && publishedAt != nil
	}, 5*time.Second, 100*time.Millisecond)
}

func (s *IntegrationTestSuite) TestListAdjustments_TimeRange() {
	productID := uuid.New()

	for _, delta := range []int32{10, -3, 7} {
		_, err := s.InventoryService.Adjust(s.Ctx, &domain.AdjustmentInput{
			ProductID:     productID,
			ProductName:   "Test Product",
			QuantityDelta: delta,
			Reason:        "cycle-count",
			CreatedBy:     "ops",
		})
		s.Require().NoError(err)
	}

	adjustments, err := s.InventoryService.ListAdjustments(
		s.Ctx,
		productID,
		time.Now().UTC().Add(-time.Hour),
		time.Now().UTC().Add(time.Hour),
	)
	s.Require().NoError(err)
	s.Require().Len(adjustments, 3)
	s.Require().Equal(int32(10), adjustments[0].QuantityDelta)
	s.Require().Equal(int32(-3), adjustments[1].QuantityDelta)
}

func (s *IntegrationTestSuite) TestGetAvailability_OmitsUnknownProducts() {
	known := uuid.New()
	s.seedItem(known, 40, 15)

	entries, err := s.InventoryService.GetAvailability(s.Ctx, []uuid.UUID{known, uuid.New()})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Require().Equal(known, entries[0].ProductID)
	s.Require().Equal(int32(40), entries[0].QuantityOnHand)
	s.Require().Equal(int32(15), entries[0].QuantityReserved)
	s.Require().Equal(int32(25), entries[0].AvailableQuantity)
}
