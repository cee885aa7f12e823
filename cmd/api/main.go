package main

import (
	"fmt"
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/referly/backend/internal/config"
	"github.com/referly/backend/internal/database"
	"github.com/referly/backend/internal/database/migrations"
	"github.com/referly/backend/internal/handlers"
	"github.com/referly/backend/internal/jobs"
	"github.com/referly/backend/internal/queue"
	"github.com/referly/backend/internal/routes"
	"github.com/referly/backend/internal/services/earnings"
	"github.com/referly/backend/internal/services/graph"
	"github.com/referly/backend/internal/services/notifications"
	"github.com/referly/backend/internal/services/payment"
	"github.com/referly/backend/internal/services/points"
	"github.com/referly/backend/internal/services/referralcode"
	"github.com/referly/backend/internal/services/users"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := migrations.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Redis-backed job queue for notifications and settlement sweeps
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Invalid Redis URL: %v", err)
	}
	if cfg.Redis.Password != "" {
		redisOpts.Password = cfg.Redis.Password
	}
	redisOpts.DB = cfg.Redis.DB

	redisClient := queue.NewRedisClient(redis.NewClient(redisOpts), db)
	workerManager := queue.NewWorkerManager(redisClient)

	// Wire up services
	userSvc := users.NewUserService(db)
	codeSvc := referralcode.NewService(cfg.Referral, userSvc)
	graphSvc := graph.NewService(db, cfg.Referral, userSvc)
	pointsSvc := points.NewPointsService(db)
	cashSvc := payment.NewCashService("USD")
	notifySvc := notifications.NewNotificationService(workerManager)
	earningsSvc := earnings.NewService(db, cfg.Referral, userSvc, graphSvc, pointsSvc, cashSvc, notifySvc)

	jobs.RegisterAllJobHandlers(workerManager, db, userSvc, cashSvc)
	if err := jobs.ScheduleRecurringJobs(workerManager); err != nil {
		log.Printf("Warning: failed to schedule recurring jobs: %v", err)
	}
	workerManager.StartAll()
	defer workerManager.StopAll()

	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	referralHandler := handlers.NewReferralHandler(codeSvc, graphSvc, userSvc)
	payoutHandler := handlers.NewPayoutHandler(earningsSvc)
	routes.RegisterRoutes(router, referralHandler, payoutHandler)

	fmt.Printf("Referly API server running on port %s\n", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
