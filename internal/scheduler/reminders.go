package scheduler

import (
	"log"
	"time"

	"telehealth-app-server/internal/events"
	"telehealth-app-server/internal/models"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// StartReminderScheduler runs a daily job that publishes reminder events for
// tomorrow's scheduled video consultations.
func StartReminderScheduler(db *gorm.DB, producer *events.Producer, cronSpec string) (*cron.Cron, error) {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(cronSpec, func() {
		sendReminders(db, producer)
	})
	if err != nil {
		return nil, err
	}
	scheduler.Start()
	return scheduler, nil
}

func sendReminders(db *gorm.DB, producer *events.Producer) {
	start := time.Now().Truncate(24 * time.Hour).Add(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	var appointments []models.Appointment
	err := db.
		Where("status = ? AND modality = ? AND scheduled_at >= ? AND scheduled_at < ?",
			models.StatusScheduled, models.ModalityVideo, start, end).
		Find(&appointments).Error
	if err != nil {
		log.Println("reminder scan failed:", err)
		return
	}

	for i := range appointments {
		producer.AppointmentReminder(&appointments[i])
	}
	log.Printf("published %d consultation reminders", len(appointments))
}
