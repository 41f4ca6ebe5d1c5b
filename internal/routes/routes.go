package routes

import (
	"telehealth-app-server/internal/channel"
	"telehealth-app-server/internal/config"
	"telehealth-app-server/internal/directory"
	"telehealth-app-server/internal/handlers"
	"telehealth-app-server/internal/middleware"
	"telehealth-app-server/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, db *gorm.DB, cfg *config.Config, dir *directory.Service, broker *channel.Broker) {
	// Initialize handlers
	authHandler := handlers.NewAuthHandler(db, cfg)
	userHandler := handlers.NewUserHandler(db)
	appointmentHandler := handlers.NewAppointmentHandler(db, dir)
	consultationHandler := handlers.NewConsultationHandler(dir, broker, cfg)

	// Public routes (no authentication required)
	public := router.Group("/api/v1")
	{
		authRoutes := public.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh-token", authHandler.RefreshToken)
		}
	}

	// Authenticated routes
	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(cfg)) // Apply JWT authentication middleware
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.POST("/logout", authHandler.Logout)
			authRoutesPrivate.GET("/profile", authHandler.GetProfile)
		}

		userRoutes := private.Group("/users")
		{
			// Doctor directory for the scheduler - accessible by all authenticated users
			userRoutes.GET("/doctors", userHandler.GetDoctors)

			// Patient list - accessible by doctors
			userRoutes.GET("/patients", userHandler.GetPatients)
		}

		// Appointment routes
		appointmentRoutes := private.Group("/appointments")
		{
			// Patients book appointments for themselves
			appointmentRoutes.POST("", middleware.RoleAuthMiddleware(models.RolePatient), appointmentHandler.CreateAppointment)

			// All authenticated users can get their own appointments
			appointmentRoutes.GET("", appointmentHandler.GetAppointmentsForUser)

			// Specific appointment access (parties only, enforced by the directory)
			appointmentRoutes.GET("/:id", appointmentHandler.GetAppointmentByID)

			// Status transitions (authorization enforced by the directory)
			appointmentRoutes.PATCH("/:id/status", appointmentHandler.UpdateAppointmentStatus)
		}

		// Live consultation session (WebSocket)
		private.GET("/consultations/:id/ws", consultationHandler.Join)
	}

	// Simple health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "UP"})
	})
}
