package main

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"github.com/beniljosek/peerly/internal/config"
	"github.com/beniljosek/peerly/internal/database"
	"github.com/beniljosek/peerly/internal/jobs"
	"github.com/beniljosek/peerly/internal/routes"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.DBUrl == "" {
		log.Fatal("DB_URL is required")
	}
	if err := database.ConnectDB(cfg.DBUrl); err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.CloseDB()
	log.Info("Connected to PostgreSQL")

	app := fiber.New()

	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	settlementService := routes.RegisterRoutes(app, cfg, database.DB)

	scheduler := jobs.NewScheduler(cfg.SettlementCron, settlementService)
	if err := scheduler.Start(context.Background()); err != nil {
		log.WithError(err).Fatal("Failed to start settlement sweeper")
	}
	defer scheduler.Stop()

	log.WithField("port", cfg.Port).Info("Server starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("Server failed to start")
	}
}
