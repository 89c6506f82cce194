package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"geobets-core-service/handlers"
	"geobets-core-service/middleware"
	"geobets-core-service/models"
	"geobets-core-service/services"
	"geobets-core-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // JSON only, nothing big travels through here
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PATCH,OPTIONS,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Service-Token, X-Player-Address",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Game{},
		&models.Bet{},
		&models.ImageMirror{},
		&models.SettlementPayout{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	chainClient := services.NewChainClient()

	gameService := services.NewGameService(db, chainClient)
	betService := services.NewBetService(db)
	settlementService := services.NewSettlementService(db, chainClient)
	imageService := services.NewImageService(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Mirror the image catalog and reconcile against the chain ---
	imageSyncClient := workers.NewImageSyncClient(db)
	go workers.PollImages(ctx, imageSyncClient, 30*time.Second)

	reconciler := workers.NewChainReconciler(db, chainClient, gameService, settlementService)
	go workers.PollChain(ctx, reconciler, 10*time.Second)

	settlementService.StartSettlementScheduler()

	// ✅ Setup routes — enforced Gateway auth everywhere
	handlers.SetupGameRoutes(app, gameService, settlementService, imageService)
	handlers.SetupBetRoutes(app, betService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Image catalog polling running (every 30s)")
	log.Println("✅ Chain reconciliation running (every 10s)")
	log.Println("✅ Settlement sweep running (every 1m)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
