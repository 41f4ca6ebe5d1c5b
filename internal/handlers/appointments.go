package handlers

import (
	"errors"
	"time"

	"telehealth-app-server/internal/directory"
	"telehealth-app-server/internal/middleware"
	"telehealth-app-server/internal/models"
	"telehealth-app-server/internal/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AppointmentHandler handles appointment related requests. Reads and status
// transitions on a single appointment go through the directory; list and
// create are plain queries.
type AppointmentHandler struct {
	DB  *gorm.DB
	Dir *directory.Service
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(db *gorm.DB, dir *directory.Service) *AppointmentHandler {
	return &AppointmentHandler{DB: db, Dir: dir}
}

// CreateAppointmentRequest represents the request body for creating an appointment.
type CreateAppointmentRequest struct {
	DoctorID    string    `json:"doctorId" binding:"required,uuid"`
	ScheduledAt time.Time `json:"scheduledAt" binding:"required"`
	Modality    string    `json:"modality" binding:"required,oneof=video phone in-person"`
	Notes       string    `json:"notes"`
}

// CreateAppointment handles creating a new appointment. Initiated by a
// patient, always for themselves.
func (h *AppointmentHandler) CreateAppointment(c *gin.Context) {
	var req CreateAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	patientID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "Patient ID not found in token")
		return
	}

	// Verify doctor exists and is a doctor
	var doctor models.User
	if err := h.DB.Where("id = ? AND role = ?", req.DoctorID, models.RoleDoctor).First(&doctor).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.NotFound(c, "Doctor not found or user is not a doctor")
		} else {
			utils.InternalServerError(c, "Database error verifying doctor: "+err.Error())
		}
		return
	}

	if req.ScheduledAt.Before(time.Now()) {
		utils.BadRequest(c, "Appointment date must be in the future.")
		return
	}

	appointment := models.Appointment{
		PatientID:   patientID,
		DoctorID:    req.DoctorID,
		ScheduledAt: req.ScheduledAt,
		Modality:    models.AppointmentModality(req.Modality),
		Notes:       req.Notes,
		Status:      models.StatusScheduled,
	}

	if err := h.DB.Create(&appointment).Error; err != nil {
		utils.InternalServerError(c, "Failed to create appointment: "+err.Error())
		return
	}

	utils.Created(c, "Appointment created successfully", appointment)
}

// GetAppointmentsForUser handles fetching appointments for the logged-in
// user (patient or doctor). Use upcoming=true to keep only future scheduled
// appointments.
func (h *AppointmentHandler) GetAppointmentsForUser(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	userRole, _ := middleware.GetUserRoleFromContext(c)

	query := h.DB.Preload("Patient").Preload("Doctor").Order("scheduled_at asc")
	if c.Query("upcoming") == "true" {
		query = query.Where("status = ? AND scheduled_at > ?", models.StatusScheduled, time.Now())
	}

	var appointments []models.Appointment
	var err error
	switch userRole {
	case models.RolePatient:
		err = query.Where("patient_id = ?", userID).Find(&appointments).Error
	case models.RoleDoctor:
		err = query.Where("doctor_id = ?", userID).Find(&appointments).Error
	case models.RoleAdmin:
		err = query.Find(&appointments).Error
	default:
		utils.Forbidden(c, "User role not permitted to view appointments")
		return
	}

	if err != nil {
		utils.InternalServerError(c, "Failed to fetch appointments: "+err.Error())
		return
	}

	utils.Success(c, "Appointments fetched successfully", appointments)
}

// GetAppointmentByID handles fetching a single appointment by its ID.
// Accessible only by the patient or doctor on the appointment.
func (h *AppointmentHandler) GetAppointmentByID(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	appointment, err := h.Dir.LoadAppointment(userID, c.Param("id"))
	if err != nil {
		respondDirectoryError(c, err)
		return
	}

	utils.Success(c, "Appointment fetched successfully", appointment)
}

// UpdateAppointmentStatusRequest represents the request body for updating an
// appointment's status.
type UpdateAppointmentStatusRequest struct {
	Status models.AppointmentStatus `json:"status" binding:"required,oneof=in-progress completed cancelled"`
}

// UpdateAppointmentStatus handles updating the status of an appointment.
// The directory enforces who may perform which transition.
func (h *AppointmentHandler) UpdateAppointmentStatus(c *gin.Context) {
	var req UpdateAppointmentStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	userID, _ := middleware.GetUserIDFromContext(c)
	appointmentID := c.Param("id")

	var err error
	switch req.Status {
	case models.StatusInProgress:
		err = h.Dir.MarkInProgress(userID, appointmentID)
	case models.StatusCompleted:
		err = h.Dir.MarkCompleted(userID, appointmentID)
	case models.StatusCancelled:
		err = h.Dir.MarkCancelled(userID, appointmentID)
	}
	if err != nil {
		respondDirectoryError(c, err)
		return
	}

	appointment, err := h.Dir.LoadAppointment(userID, appointmentID)
	if err != nil {
		respondDirectoryError(c, err)
		return
	}

	utils.Success(c, "Appointment status updated successfully", appointment)
}

// respondDirectoryError translates directory errors into HTTP responses.
func respondDirectoryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, directory.ErrNotFound):
		utils.NotFound(c, "Appointment not found")
	case errors.Is(err, directory.ErrForbidden):
		utils.Forbidden(c, "You are not authorized to access this appointment")
	case errors.Is(err, directory.ErrInvalidTransition):
		utils.Conflict(c, "Appointment status cannot change this way")
	default:
		utils.InternalServerError(c, "Database error: "+err.Error())
	}
}
