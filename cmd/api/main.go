package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/homerent/homerent-backend/internal/database"
	"github.com/homerent/homerent-backend/internal/gateway"
	"github.com/homerent/homerent-backend/internal/handlers"
	"github.com/homerent/homerent-backend/internal/middleware"
	"github.com/homerent/homerent-backend/internal/services"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, relying on environment")
	}

	// Initialize database with better error handling
	db, err := database.InitDB()
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}

	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Get underlying SQL DB instance
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatalf("Failed to get database instance: %v", err)
	}

	// Configure connection pool
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Initialize Redis (calendar cache)
	if err := services.InitRedis(); err != nil {
		logger.Fatalf("Failed to initialize Redis: %v", err)
	}

	// Payment gateway client, constructed once and injected everywhere
	gw, err := gateway.NewRazorpayClient()
	if err != nil {
		logger.Fatalf("Failed to initialize payment gateway: %v", err)
	}

	// Initialize WebSocket hub
	hub := services.NewHub()
	go hub.Run()

	// Core services
	refunds := services.NewRefundCoordinator(db, gw, logger)
	bookings := services.NewBookingService(db, refunds, hub, logger)
	payments := services.NewPaymentService(db, gw, bookings, refunds, logger)

	// Background sweep: date-driven transitions, stale pending expiry,
	// refund retries
	sweeper := services.NewSweeper(db, bookings, payments, refunds, logger,
		envDuration("SWEEP_INTERVAL", time.Minute),
		envDuration("PENDING_BOOKING_TTL", 15*time.Minute))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Run(ctx)

	// Initialize router
	r := gin.Default()

	// Configure CORS
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(config))

	// Routes
	api := r.Group("/api")
	{
		// Public routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", handlers.Register(db))
			auth.POST("/login", handlers.Login(db))
		}

		// Gateway callback is public; authenticity comes from the signature
		api.POST("/payments/callback", handlers.PaymentCallback(payments))

		// Public property browsing
		api.GET("/properties", handlers.GetProperties(db))
		api.GET("/properties/:id", handlers.GetProperty(db))
		api.GET("/properties/:id/disabled-dates", handlers.GetDisabledDates(bookings))

		// WebSocket connection
		api.GET("/ws", middleware.AuthMiddleware(), handlers.WebSocketHandler(hub))

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware())
		{
			// User routes
			users := protected.Group("/users")
			{
				users.GET("/profile", handlers.GetProfile(db))
				users.PUT("/profile", handlers.UpdateProfile(db))
			}

			// Property management routes
			properties := protected.Group("/properties")
			{
				properties.POST("", handlers.CreateProperty(db))
				properties.PUT("/:id", handlers.UpdateProperty(db))
			}

			// Booking routes
			bookingRoutes := protected.Group("/bookings")
			{
				bookingRoutes.POST("", handlers.CreateBooking(bookings))
				bookingRoutes.GET("", handlers.GetClientBookings(db))
				bookingRoutes.GET("/:id", handlers.GetBooking(db))
				bookingRoutes.PATCH("/:id", handlers.UpdateBooking(bookings))
				bookingRoutes.POST("/:id/cancel", handlers.CancelBooking(db, bookings))
				bookingRoutes.POST("/:id/pay", handlers.InitiatePayment(payments))
			}

			// Payment history
			protected.GET("/payments", handlers.GetUserPayments(db))
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
