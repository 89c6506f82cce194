// handlers/game_routes.go
package handlers

import (
	"geobets-core-service/middleware"
	"geobets-core-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupGameRoutes(app *fiber.App, gameService *services.GameService, settlementService *services.SettlementService, imageService *services.ImageService) {
	// 🔓 Public routes — *no player context*, but **still require Gateway auth**
	app.Get("/images", imageService.ListImages)
	app.Get("/games", gameService.ListOpenGames)
	app.Get("/games/:id", gameService.GetGame)
	app.Get("/games/:id/payouts", settlementService.ListPayouts)

	// 🔐 Secured routes — require a verified wallet address, enforced per route
	playerCtx := middleware.PlayerContextMiddleware()

	app.Post("/games", playerCtx, gameService.CreateGame)
	app.Post("/games/:ref/confirm", playerCtx, gameService.ConfirmGame)
	app.Post("/games/:id/solution", playerCtx, gameService.RevealSolution)
	app.Post("/games/:id/settle", playerCtx, settlementService.SettleGame)
}
