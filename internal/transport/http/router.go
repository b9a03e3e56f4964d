package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/manu042k/ecommerce-microservices/internal/transport/http/handler"
)

type Handlers struct {
	Inventory   *handler.InventoryHandler
	Reservation *handler.ReservationHandler
}

func RegisterRoutes(app *fiber.App, h *Handlers) {
	api := app.Group("/api")

	inventory := api.Group("/inventory")
	inventory.Get("", h.Inventory.GetInventory)
	inventory.Get("/adjustments", h.Inventory.ListAdjustments)
	inventory.Post("/adjustments", h.Inventory.Adjust)

	internal := app.Group("/internal/inventory")

	reservations := internal.Group("/reservations")
	reservations.Post("", h.Reservation.Create)
	reservations.Post("/:id/release", h.Reservation.Release)
	reservations.Post("/:id/commit", h.Reservation.Commit)

	internal.Post("/availability", h.Reservation.GetAvailability)
}
