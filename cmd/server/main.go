package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/foodloop/foodloop/internal/config"
	"github.com/foodloop/foodloop/internal/database"
	"github.com/foodloop/foodloop/internal/handlers"
	"github.com/foodloop/foodloop/internal/jobs"
	"github.com/foodloop/foodloop/internal/models"
	"github.com/foodloop/foodloop/internal/repository"
	cronjobs "github.com/foodloop/foodloop/internal/scheduler"
	"github.com/foodloop/foodloop/internal/services"
	"github.com/foodloop/foodloop/pkg/email"
	"github.com/foodloop/foodloop/pkg/logger"
	"github.com/foodloop/foodloop/pkg/middleware"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

func main() {
	// Load configuration from .env file
	cfg := config.LoadConfig()

	logger.InitLogger()
	logger.Log.Info("Logger initialized")

	// Connect to MongoDB
	db, err := database.ConnectDB(cfg)
	if err != nil {
		log.Fatalf("Database connection error: %v", err)
	}

	// --- Repositories ---
	userRepo := repository.NewUserRepository(db)
	donationRepo := repository.NewDonationRepository(db)
	ratingRepo := repository.NewRatingRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// --- Realtime hub ---
	hub := handlers.NewNotificationHub()

	// --- Mailer (optional) ---
	var mailer services.Mailer
	if email.Configured() {
		mailer = email.Sender{}
	}

	// --- Services ---
	notificationService := services.NewNotificationService(notificationRepo, hub)
	userService := services.NewUserService(userRepo, mailer, cfg.BaseURL)
	donationService := services.NewDonationService(donationRepo, userRepo, notificationService, mailer)
	ratingService := services.NewRatingService(ratingRepo, donationRepo, notificationService)

	// --- Handlers ---
	userHandler := handlers.NewUserHandler(userService, donationService, ratingService, cfg)
	donationHandler := handlers.NewDonationHandler(donationService, ratingService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	wsHandler := handlers.NewWSNotificationHandler(hub, cfg.JWTSecret)

	// Initialize Gorilla Mux router
	router := mux.NewRouter()

	// Public user routes
	router.HandleFunc("/users/register", userHandler.RegisterUserHandler).Methods("POST")
	router.HandleFunc("/users/login", userHandler.LoginUserHandler).Methods("POST")
	router.HandleFunc("/users/verify", userHandler.VerifyEmailHandler).Methods("GET")

	// Protected user routes
	protectedUserRoutes := router.PathPrefix("/users").Subrouter()
	protectedUserRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protectedUserRoutes.Use(middleware.UpdateLastActiveMiddleware(userService))
	protectedUserRoutes.HandleFunc("/{id}", userHandler.GetUserHandler).Methods("GET")
	protectedUserRoutes.HandleFunc("/{id}", userHandler.UpdateUserHandler).Methods("PATCH")
	protectedUserRoutes.HandleFunc("/{id}/stats", userHandler.UserStatsHandler).Methods("GET")
	protectedUserRoutes.HandleFunc("/{id}/ratings", userHandler.UserRatingsHandler).Methods("GET")

	// Donation routes
	donationRoutes := router.PathPrefix("/donations").Subrouter()
	donationRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	donationRoutes.Use(middleware.UpdateLastActiveMiddleware(userService))
	donationRoutes.HandleFunc("", donationHandler.SearchDonationsHandler).Methods("GET")
	donationRoutes.HandleFunc("/{id}", donationHandler.GetDonationHandler).Methods("GET")
	donationRoutes.HandleFunc("/{id}/claim", donationHandler.ClaimDonationHandler).Methods("POST")
	donationRoutes.HandleFunc("/{id}/complete", donationHandler.CompleteDonationHandler).Methods("POST")
	donationRoutes.HandleFunc("/{id}/cancel", donationHandler.CancelDonationHandler).Methods("POST")
	donationRoutes.HandleFunc("/{id}/rate", donationHandler.RateDonationHandler).Methods("POST")

	// Creation is donor-only
	donorRoutes := router.PathPrefix("/donations").Subrouter()
	donorRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	donorRoutes.Use(middleware.RequireRole(models.RoleDonor))
	donorRoutes.Use(middleware.UpdateLastActiveMiddleware(userService))
	donorRoutes.HandleFunc("", donationHandler.CreateDonationHandler).Methods("POST")

	// Notification routes
	notificationRoutes := router.PathPrefix("/notifications").Subrouter()
	notificationRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	notificationRoutes.Use(middleware.UpdateLastActiveMiddleware(userService))
	notificationRoutes.HandleFunc("", notificationHandler.GetUserNotificationsHandler).Methods("GET")
	notificationRoutes.HandleFunc("/unread-count", notificationHandler.UnreadCountHandler).Methods("GET")
	notificationRoutes.HandleFunc("/{id}/read", notificationHandler.MarkAsReadHandler).Methods("POST")
	notificationRoutes.HandleFunc("/read-all", notificationHandler.MarkAllReadHandler).Methods("POST")

	// Realtime notification stream (token-authenticated in-handler)
	router.HandleFunc("/ws/notifications", wsHandler.StreamHandler).Methods("GET")

	// Apply middleware for logging
	router.Use(middleware.LoggingMiddleware)

	// Background maintenance
	sweeper := jobs.NewExpirySweeper(donationService)
	cronjobs.StartMaintenanceCronJobs(sweeper, notificationService)

	// Start the HTTP server
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	handler := c.Handler(router)

	fmt.Printf("Server running on port %s\n", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, handler))
}
