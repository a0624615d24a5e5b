package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"leadbook-service/internal/app"
	"leadbook-service/internal/server"
)

func main() {
	_ = godotenv.Load()

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL required")
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer pool.Close()

	manageSecret := strings.TrimSpace(os.Getenv("MANAGE_TOKEN_SECRET"))
	if manageSecret == "" {
		log.Fatal("MANAGE_TOKEN_SECRET required")
	}

	appInstance := &app.App{
		DB:           pool,
		Calendar:     newCalendar(ctx, logger),
		CRM:          newCRM(logger),
		Log:          logger,
		ManageSecret: []byte(manageSecret),
	}

	router := gin.Default()
	router.GET("/healthz", appInstance.HealthHandler)

	api := router.Group("/api")
	{
		api.GET("/availability", appInstance.GetAvailabilityHandler)
		api.POST("/bookings", appInstance.CreateBookingHandler)
		api.POST("/bookings/:id/reschedule", appInstance.RescheduleBookingHandler)
		api.DELETE("/bookings/:id", appInstance.CancelBookingHandler)

		admin := api.Group("/admin")
		admin.Use(app.AdminAuthMiddleware(
			strings.Split(strings.TrimSpace(os.Getenv("ADMIN_TOKENS")), ","),
			strings.TrimSpace(os.Getenv("ADMIN_JWT_SECRET")),
		))
		{
			admin.GET("/settings", appInstance.GetSettingsHandler)
			admin.PUT("/settings", appInstance.PutSettingsHandler)
			admin.GET("/bookings", appInstance.ListBookingsHandler)
		}
	}

	server.Run(router)
}

func newLogger() *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if os.Getenv("ENV") == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	return logger
}

// newCalendar wires the Google Calendar client. Missing credentials leave it
// nil: availability fails closed and live bookings report unavailable.
func newCalendar(ctx context.Context, logger *zap.Logger) app.CalendarAPI {
	credsPath := os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")
	subject := os.Getenv("HOST_MAILBOX")
	if credsPath == "" || subject == "" {
		logger.Warn("calendar credentials not configured, bookings will be unavailable")
		return nil
	}
	creds, err := os.ReadFile(credsPath)
	if err != nil {
		logger.Error("failed to read calendar credentials", zap.Error(err))
		return nil
	}
	cal, err := app.NewGoogleCalendar(ctx, creds, subject)
	if err != nil {
		logger.Error("failed to initialize calendar client", zap.Error(err))
		return nil
	}
	return cal
}

// newCRM wires the CRM client. Missing configuration leaves it nil: CRM sync
// is best-effort and simply skipped.
func newCRM(logger *zap.Logger) app.CRM {
	baseURL := os.Getenv("CRM_BASE_URL")
	apiKey := os.Getenv("CRM_API_KEY")
	if baseURL == "" || apiKey == "" {
		logger.Info("crm not configured, sync disabled")
		return nil
	}
	crm, err := app.NewCRMClient(app.CRMConfig{BaseURL: baseURL, APIKey: apiKey})
	if err != nil {
		logger.Error("failed to initialize crm client", zap.Error(err))
		return nil
	}
	return crm
}
