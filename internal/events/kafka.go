package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"telehealth-app-server/internal/models"

	"github.com/segmentio/kafka-go"
)

// AppointmentEvent is the message published for appointment lifecycle changes.
type AppointmentEvent struct {
	Kind          string                     `json:"kind"` // status-changed | reminder
	AppointmentID string                     `json:"appointmentId"`
	PatientID     string                     `json:"patientId"`
	DoctorID      string                     `json:"doctorId"`
	Status        models.AppointmentStatus   `json:"status"`
	Modality      models.AppointmentModality `json:"modality"`
	ScheduledAt   time.Time                  `json:"scheduledAt"`
	EmittedAt     time.Time                  `json:"emittedAt"`
}

// Producer publishes appointment events to Kafka. Publishing is best-effort:
// failures are logged, never propagated into the request path.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a producer against the given broker and topic.
func NewProducer(broker, topic string) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      []string{broker},
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: int(kafka.RequireOne),
	})
	return &Producer{writer: writer}
}

// AppointmentStatusChanged publishes a committed status transition, keyed by
// appointment id so per-appointment ordering is preserved.
func (p *Producer) AppointmentStatusChanged(appt *models.Appointment) {
	p.publish(AppointmentEvent{
		Kind:          "status-changed",
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		Status:        appt.Status,
		Modality:      appt.Modality,
		ScheduledAt:   appt.ScheduledAt,
		EmittedAt:     time.Now(),
	})
}

// AppointmentReminder publishes an upcoming-appointment reminder.
func (p *Producer) AppointmentReminder(appt *models.Appointment) {
	p.publish(AppointmentEvent{
		Kind:          "reminder",
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		Status:        appt.Status,
		Modality:      appt.Modality,
		ScheduledAt:   appt.ScheduledAt,
		EmittedAt:     time.Now(),
	})
}

func (p *Producer) publish(event AppointmentEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		log.Println("failed to marshal appointment event:", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(event.AppointmentID),
		Value: message,
	}
	if err := p.writer.WriteMessages(context.Background(), msg); err != nil {
		log.Printf("failed to produce %s event for appointment %s: %v", event.Kind, event.AppointmentID, err)
	}
}

// Close releases the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
