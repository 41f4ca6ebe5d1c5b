package directory

import (
	"time"

	"telehealth-app-server/internal/models"

	"gorm.io/gorm"
)

// GormStore implements Store over the application's MySQL database.
type GormStore struct {
	DB *gorm.DB
}

// NewGormStore creates a GORM-backed directory store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

// GetAppointment loads an appointment with its doctor and patient preloaded.
func (s *GormStore) GetAppointment(id string) (*models.Appointment, error) {
	var appt models.Appointment
	if err := s.DB.Preload("Patient").Preload("Doctor").First(&appt, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &appt, nil
}

// UpdateStatus persists a status transition.
func (s *GormStore) UpdateStatus(id string, status models.AppointmentStatus, completedAt *time.Time) error {
	updates := map[string]interface{}{"status": status}
	if completedAt != nil {
		updates["completed_at"] = completedAt
	}
	result := s.DB.Model(&models.Appointment{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProfile resolves a user id to its participant identity.
func (s *GormStore) GetProfile(id string) (models.Participant, error) {
	var user models.User
	if err := s.DB.First(&user, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return models.Participant{}, ErrNotFound
		}
		return models.Participant{}, err
	}
	return user.Participant(), nil
}
