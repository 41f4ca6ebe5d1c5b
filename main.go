package main

import (
	"fmt"
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"telehealth-app-server/internal/channel"
	"telehealth-app-server/internal/config"
	"telehealth-app-server/internal/directory"
	"telehealth-app-server/internal/events"
	"telehealth-app-server/internal/models"
	"telehealth-app-server/internal/routes"
	"telehealth-app-server/internal/scheduler"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	// Initialize database connection
	db, err := models.InitDB(models.DatabaseConfig{DSN: cfg.Database.DSN})
	if err != nil {
		log.Fatalf("Error connecting to database: %v", err)
	}

	// Appointment event producer (optional, enabled when a broker is configured)
	var notifier directory.Notifier
	var producer *events.Producer
	if cfg.Kafka.Broker != "" {
		producer = events.NewProducer(cfg.Kafka.Broker, cfg.Kafka.Topic)
		defer producer.Close()
		notifier = producer
	}

	// Session directory and the in-process consultation relay
	dir := directory.NewService(directory.NewGormStore(db), notifier)
	broker := channel.NewBroker()

	// Daily consultation reminders
	if producer != nil {
		if _, err := scheduler.StartReminderScheduler(db, producer, cfg.ReminderCronSpec); err != nil {
			log.Fatalf("Error starting reminder scheduler: %v", err)
		}
	}

	// Initialize Gin router
	router := gin.Default()

	// Configure CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	// Set up routes
	routes.SetupRoutes(router, db, cfg, dir, broker)

	// Start server
	serverAddr := fmt.Sprintf(":%s", cfg.Port)
	fmt.Printf("Server running on port %s\n", cfg.Port)
	if err := router.Run(serverAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
