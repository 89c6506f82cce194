// handlers/bet_routes.go
package handlers

import (
	"geobets-core-service/middleware"
	"geobets-core-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupBetRoutes(app *fiber.App, betService *services.BetService) {
	// 🔓 Public query — Gateway auth only
	app.Get("/bets", betService.ListBets)

	// 🔐 Placing and revealing require the player's verified wallet
	playerCtx := middleware.PlayerContextMiddleware()

	app.Post("/bets", playerCtx, betService.PlaceBet)
	app.Patch("/bets", playerCtx, betService.RevealBet)
}
