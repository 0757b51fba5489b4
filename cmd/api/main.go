package main

import (
	"time"

	"taskhive/configs"
	v1 "taskhive/internal/api/v1"
	"taskhive/internal/api/v1/handlers"
	"taskhive/internal/config"
	"taskhive/internal/middleware"
	"taskhive/internal/repository"
	myws "taskhive/internal/websocket"
	"taskhive/pkg/database"
	"taskhive/pkg/logger"
	"taskhive/pkg/mailer"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"go.uber.org/zap"
)

func main() {
	// Inisialisasi logger
	logger.InitLoggers()
	defer logger.SyncLoggers()
	logger.SystemLogger.Info("Starting application", zap.String("time", time.Now().Format(time.RFC3339)))

	// Load config
	cfg := configs.LoadConfig()
	config.SecretKey = []byte(cfg.JWTSecret)
	handlers.UploadDir = cfg.UploadDir

	// Inisialisasi database
	config.DB = database.ConnectDB(cfg)
	defer config.DB.Close()

	logger.SystemLogger.Info("Database Connected")

	// Buat tabel jika belum ada, dan pastikan ada minimal satu admin
	repository.CreateTableIfNotExists(config.DB)
	repository.EnsureAdminUser(config.DB)

	// Inisialisasi Redis
	config.RedisClient = database.ConnectRedis(cfg)
	defer config.RedisClient.Close()

	// Inisialisasi mailer: tanpa SMTP_HOST, email hanya dicatat ke log
	if cfg.SMTPHost != "" {
		config.Mailer = mailer.NewSMTPSender(cfg)
	} else {
		config.Mailer = mailer.NewLogSender()
		logger.SystemLogger.Info("SMTP_HOST not set, emails will only be logged")
	}

	// Hub untuk realtime change feed (tabel tasks dan notifications)
	config.Hub = myws.NewHub()
	go config.Hub.Run()

	// Body limit dinaikkan supaya batas 5MB lampiran yang menentukan,
	// bukan batas bawaan fiber
	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
	})

	// Middleware
	app.Use(middleware.ErrorHandler())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	// Daftarkan route API v1
	v1.RegisterRoutes(app, config.Hub)

	logger.SystemLogger.Info("Application ready", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.ErrorLogger.Error("Application failed to start", zap.Error(err))
	}
}
