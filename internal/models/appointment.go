package models

import (
	"time"
)

// AppointmentStatus represents the status of an appointment
type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusInProgress AppointmentStatus = "in-progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
)

// AppointmentModality represents how the consultation is held
type AppointmentModality string

const (
	ModalityVideo    AppointmentModality = "video"
	ModalityPhone    AppointmentModality = "phone"
	ModalityInPerson AppointmentModality = "in-person"
)

// Appointment represents a scheduled consultation between a patient and a doctor
type Appointment struct {
	BaseModel
	PatientID   string              `gorm:"size:36;index" json:"patientId"`
	DoctorID    string              `gorm:"size:36;index" json:"doctorId"`
	ScheduledAt time.Time           `json:"scheduledAt"`
	Status      AppointmentStatus   `gorm:"size:20;default:'scheduled'" json:"status"`
	Modality    AppointmentModality `gorm:"size:20;default:'video'" json:"modality"`
	Notes       string              `gorm:"type:text" json:"notes"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`

	// Relations
	Patient User `gorm:"foreignKey:PatientID" json:"patient"`
	Doctor  User `gorm:"foreignKey:DoctorID" json:"doctor"`
}

// CanTransition reports whether moving from the current status to next is a
// valid forward transition. Completed and cancelled appointments are terminal.
func (s AppointmentStatus) CanTransition(next AppointmentStatus) bool {
	switch s {
	case StatusScheduled:
		return next == StatusInProgress || next == StatusCompleted || next == StatusCancelled
	case StatusInProgress:
		return next == StatusCompleted || next == StatusCancelled
	default:
		return false
	}
}

// IsParty reports whether the given user is the patient or doctor on this appointment.
func (a *Appointment) IsParty(userID string) bool {
	return userID == a.PatientID || userID == a.DoctorID
}
