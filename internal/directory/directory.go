package directory

import (
	"errors"
	"time"

	"telehealth-app-server/internal/models"
)

// Sentinel errors for directory operations. Handlers translate these into
// HTTP responses; the session controller branches on them directly.
var (
	ErrNotFound          = errors.New("appointment not found")
	ErrForbidden         = errors.New("caller is not a party to this appointment")
	ErrInvalidTransition = errors.New("invalid appointment status transition")
)

// Store is the persistence contract the directory runs over. The production
// implementation is backed by GORM; tests use an in-memory fake.
type Store interface {
	// GetAppointment resolves an appointment with its doctor and patient
	// embedded, or ErrNotFound.
	GetAppointment(id string) (*models.Appointment, error)
	// UpdateStatus persists a status change. completedAt is non-nil only
	// for the completed status.
	UpdateStatus(id string, status models.AppointmentStatus, completedAt *time.Time) error
	// GetProfile resolves a user id to its participant identity.
	GetProfile(id string) (models.Participant, error)
}

// Notifier receives committed appointment status transitions. A nil notifier
// on the service disables event publishing.
type Notifier interface {
	AppointmentStatusChanged(appt *models.Appointment)
}

// Service resolves appointments to their participants and enforces the
// status state machine. It is the only component touching persistent
// appointment state.
type Service struct {
	store    Store
	notifier Notifier
}

// NewService creates a directory service. notifier may be nil.
func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// LoadAppointment resolves an appointment with embedded doctor and patient.
// An unauthorized read is a hard failure, never silently empty data.
func (s *Service) LoadAppointment(callerID, appointmentID string) (*models.Appointment, error) {
	appt, err := s.store.GetAppointment(appointmentID)
	if err != nil {
		return nil, err
	}
	if !appt.IsParty(callerID) {
		return nil, ErrForbidden
	}
	return appt, nil
}

// Profile resolves a user id to its participant identity.
func (s *Service) Profile(userID string) (models.Participant, error) {
	return s.store.GetProfile(userID)
}

// MarkInProgress records that the consultation for an appointment has
// started. Either party may report this.
func (s *Service) MarkInProgress(callerID, appointmentID string) error {
	return s.transition(callerID, appointmentID, models.StatusInProgress, false)
}

// MarkCompleted records that the consultation finished. Only the doctor on
// the appointment may complete it.
func (s *Service) MarkCompleted(callerID, appointmentID string) error {
	return s.transition(callerID, appointmentID, models.StatusCompleted, true)
}

// MarkCancelled cancels the appointment. Either party may cancel, but a
// completed or cancelled appointment stays that way.
func (s *Service) MarkCancelled(callerID, appointmentID string) error {
	return s.transition(callerID, appointmentID, models.StatusCancelled, false)
}

func (s *Service) transition(callerID, appointmentID string, next models.AppointmentStatus, doctorOnly bool) error {
	appt, err := s.store.GetAppointment(appointmentID)
	if err != nil {
		return err
	}
	if !appt.IsParty(callerID) {
		return ErrForbidden
	}
	if doctorOnly && callerID != appt.DoctorID {
		return ErrForbidden
	}
	if !appt.Status.CanTransition(next) {
		return ErrInvalidTransition
	}

	var completedAt *time.Time
	if next == models.StatusCompleted {
		now := time.Now()
		completedAt = &now
	}
	if err := s.store.UpdateStatus(appointmentID, next, completedAt); err != nil {
		return err
	}

	appt.Status = next
	appt.CompletedAt = completedAt
	if s.notifier != nil {
		s.notifier.AppointmentStatusChanged(appt)
	}
	return nil
}
