package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"telehealth-app-server/internal/channel"
	"telehealth-app-server/internal/directory"
	"telehealth-app-server/internal/models"
)

var (
	doctor  = models.Participant{ID: "d1", Name: "Dr. Gregory House", Role: models.RoleDoctor}
	patient = models.Participant{ID: "p1", Name: "John Smith", Role: models.RolePatient}
)

// fakeDirectory implements Directory in memory, enforcing the same party and
// transition rules as the real service and counting status writes.
type fakeDirectory struct {
	mu              sync.Mutex
	appt            *models.Appointment
	loadErr         error
	inProgressCalls int
	completedCalls  int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		appt: &models.Appointment{
			BaseModel:   models.BaseModel{ID: "apt-1"},
			PatientID:   patient.ID,
			DoctorID:    doctor.ID,
			Status:      models.StatusScheduled,
			Modality:    models.ModalityVideo,
			ScheduledAt: time.Now(),
		},
	}
}

func (f *fakeDirectory) LoadAppointment(callerID, appointmentID string) (*models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.appt.ID != appointmentID {
		return nil, directory.ErrNotFound
	}
	if !f.appt.IsParty(callerID) {
		return nil, directory.ErrForbidden
	}
	copied := *f.appt
	return &copied, nil
}

func (f *fakeDirectory) MarkInProgress(callerID, appointmentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.appt.IsParty(callerID) {
		return directory.ErrForbidden
	}
	if !f.appt.Status.CanTransition(models.StatusInProgress) {
		return directory.ErrInvalidTransition
	}
	f.appt.Status = models.StatusInProgress
	f.inProgressCalls++
	return nil
}

func (f *fakeDirectory) MarkCompleted(callerID, appointmentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if callerID != f.appt.DoctorID {
		return directory.ErrForbidden
	}
	if !f.appt.Status.CanTransition(models.StatusCompleted) {
		return directory.ErrInvalidTransition
	}
	f.appt.Status = models.StatusCompleted
	f.completedCalls++
	return nil
}

func (f *fakeDirectory) status() models.AppointmentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appt.Status
}

func (f *fakeDirectory) completions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completedCalls
}

func testConfig() Config {
	return Config{GracePeriod: 150 * time.Millisecond, TickInterval: 20 * time.Millisecond}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func hasMessage(snap Snapshot, text string) bool {
	for _, msg := range snap.Messages {
		if msg.Text == text {
			return true
		}
	}
	return false
}

func TestLookupFailures(t *testing.T) {
	t.Run("NotFound", func(t *testing.T) {
		dir := newFakeDirectory()
		ctrl := NewController(dir, channel.NewBroker(), patient, "missing", testConfig())
		ctrl.Start()

		snap := ctrl.Snapshot()
		if snap.State != StateError {
			t.Fatalf("state = %s, want error", snap.State)
		}
		if snap.ErrorMessage == "" {
			t.Fatal("expected a user-facing error message")
		}
	})

	t.Run("Forbidden", func(t *testing.T) {
		dir := newFakeDirectory()
		stranger := models.Participant{ID: "x1", Name: "Eve", Role: models.RolePatient}
		ctrl := NewController(dir, channel.NewBroker(), stranger, "apt-1", testConfig())
		ctrl.Start()

		if snap := ctrl.Snapshot(); snap.State != StateError {
			t.Fatalf("state = %s, want error", snap.State)
		}
	})
}

func TestWaitingForPeerThenActive(t *testing.T) {
	dir := newFakeDirectory()
	broker := channel.NewBroker()

	patientCtrl := NewController(dir, broker, patient, "apt-1", testConfig())
	patientCtrl.Start()
	defer patientCtrl.Leave()

	waitFor(t, "patient waiting for peer", func() bool {
		return patientCtrl.Snapshot().State == StateWaitingForPeer
	})
	if elapsed := patientCtrl.Snapshot().ElapsedSeconds; elapsed != 0 {
		t.Fatalf("clock must not run before the peer joins, elapsed = %d", elapsed)
	}

	doctorCtrl := NewController(dir, broker, doctor, "apt-1", testConfig())
	doctorCtrl.Start()
	defer doctorCtrl.Leave()

	waitFor(t, "both sides active", func() bool {
		return patientCtrl.Snapshot().State == StateActive &&
			doctorCtrl.Snapshot().State == StateActive
	})
	waitFor(t, "clock ticking", func() bool {
		return patientCtrl.Snapshot().ElapsedSeconds >= 1
	})
	if got := dir.status(); got != models.StatusInProgress {
		t.Fatalf("appointment status = %s, want in-progress", got)
	}
}

func TestDoctorEndsCall(t *testing.T) {
	dir := newFakeDirectory()
	broker := channel.NewBroker()

	patientCtrl := NewController(dir, broker, patient, "apt-1", testConfig())
	patientCtrl.Start()
	defer patientCtrl.Leave()
	doctorCtrl := NewController(dir, broker, doctor, "apt-1", testConfig())
	doctorCtrl.Start()

	waitFor(t, "both sides active", func() bool {
		return patientCtrl.Snapshot().State == StateActive &&
			doctorCtrl.Snapshot().State == StateActive
	})

	doctorCtrl.EndCall()

	if snap := doctorCtrl.Snapshot(); snap.State != StateEnded {
		t.Fatalf("doctor state = %s, want ended", snap.State)
	}
	if got := dir.status(); got != models.StatusCompleted {
		t.Fatalf("appointment status = %s, want completed", got)
	}

	// The patient rides out the grace period, then ends too. Being the
	// patient, it never writes status.
	waitFor(t, "patient ended after grace period", func() bool {
		return patientCtrl.Snapshot().State == StateEnded
	})
	if got := dir.completions(); got != 1 {
		t.Fatalf("completions = %d, want exactly 1", got)
	}
}

func TestEndCallIdempotent(t *testing.T) {
	dir := newFakeDirectory()
	broker := channel.NewBroker()

	patientCtrl := NewController(dir, broker, patient, "apt-1", testConfig())
	patientCtrl.Start()
	defer patientCtrl.Leave()
	doctorCtrl := NewController(dir, broker, doctor, "apt-1", testConfig())
	doctorCtrl.Start()

	waitFor(t, "doctor active", func() bool {
		return doctorCtrl.Snapshot().State == StateActive
	})

	doctorCtrl.EndCall()
	doctorCtrl.EndCall()
	doctorCtrl.Leave()

	if got := dir.completions(); got != 1 {
		t.Fatalf("completions = %d, want exactly 1", got)
	}
}

func TestPeerRejoinWithinGracePeriod(t *testing.T) {
	dir := newFakeDirectory()
	broker := channel.NewBroker()
	cfg := Config{GracePeriod: 400 * time.Millisecond, TickInterval: 20 * time.Millisecond}

	patientCtrl := NewController(dir, broker, patient, "apt-1", cfg)
	patientCtrl.Start()
	defer patientCtrl.Leave()
	doctorCtrl := NewController(dir, broker, doctor, "apt-1", cfg)
	doctorCtrl.Start()

	waitFor(t, "patient active", func() bool {
		return patientCtrl.Snapshot().State == StateActive
	})

	doctorCtrl.Leave()
	waitFor(t, "connectivity drop", func() bool {
		return !patientCtrl.Snapshot().PeerConnected
	})
	if snap := patientCtrl.Snapshot(); snap.State != StateActive {
		t.Fatalf("state = %s, session must survive a drop shorter than the grace period", snap.State)
	}

	// Doctor rejoins before the grace period expires.
	doctorCtrl2 := NewController(dir, broker, doctor, "apt-1", cfg)
	doctorCtrl2.Start()
	defer doctorCtrl2.Leave()

	waitFor(t, "connectivity restored", func() bool {
		return patientCtrl.Snapshot().PeerConnected
	})

	// Well past the original grace deadline the session is still active.
	time.Sleep(500 * time.Millisecond)
	if snap := patientCtrl.Snapshot(); snap.State != StateActive {
		t.Fatalf("state = %s, want active after rejoin", snap.State)
	}
}

func TestSendChatMessage(t *testing.T) {
	dir := newFakeDirectory()
	broker := channel.NewBroker()

	patientCtrl := NewController(dir, broker, patient, "apt-1", testConfig())
	patientCtrl.Start()
	defer patientCtrl.Leave()
	doctorCtrl := NewController(dir, broker, doctor, "apt-1", testConfig())
	doctorCtrl.Start()
	defer doctorCtrl.Leave()

	waitFor(t, "both sides active", func() bool {
		return patientCtrl.Snapshot().State == StateActive &&
			doctorCtrl.Snapshot().State == StateActive
	})

	t.Run("RejectsBlankText", func(t *testing.T) {
		before := len(patientCtrl.Snapshot().Messages)
		if err := patientCtrl.SendChatMessage(""); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("expected ErrEmptyMessage, got %v", err)
		}
		if err := patientCtrl.SendChatMessage("   "); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("expected ErrEmptyMessage for whitespace, got %v", err)
		}
		if after := len(patientCtrl.Snapshot().Messages); after != before {
			t.Fatalf("blank sends appended to the transcript: %d -> %d", before, after)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		if err := patientCtrl.SendChatMessage("Hello"); err != nil {
			t.Fatalf("send: %v", err)
		}
		if err := patientCtrl.SendChatMessage("  I have a headache  "); err != nil {
			t.Fatalf("send: %v", err)
		}

		// Sender sees its own messages immediately.
		snap := patientCtrl.Snapshot()
		if !hasMessage(snap, "Hello") || !hasMessage(snap, "I have a headache") {
			t.Fatalf("sender transcript missing own messages: %+v", snap.Messages)
		}

		waitFor(t, "doctor received both messages", func() bool {
			snap := doctorCtrl.Snapshot()
			return hasMessage(snap, "Hello") && hasMessage(snap, "I have a headache")
		})

		// Local ordering is preserved on the receiving side.
		var texts []string
		for _, msg := range doctorCtrl.Snapshot().Messages {
			if msg.SenderID == patient.ID && msg.SenderRole == models.RolePatient {
				texts = append(texts, msg.Text)
			}
		}
		if len(texts) != 2 || texts[0] != "Hello" || texts[1] != "I have a headache" {
			t.Fatalf("messages out of order: %v", texts)
		}
	})
}

func TestMediaFlagRelay(t *testing.T) {
	dir := newFakeDirectory()
	broker := channel.NewBroker()

	patientCtrl := NewController(dir, broker, patient, "apt-1", testConfig())
	patientCtrl.Start()
	defer patientCtrl.Leave()
	doctorCtrl := NewController(dir, broker, doctor, "apt-1", testConfig())
	doctorCtrl.Start()
	defer doctorCtrl.Leave()

	waitFor(t, "both sides active", func() bool {
		return patientCtrl.Snapshot().State == StateActive &&
			doctorCtrl.Snapshot().State == StateActive
	})

	if err := doctorCtrl.SetLocalVideo(false); err != nil {
		t.Fatalf("set video: %v", err)
	}
	if snap := doctorCtrl.Snapshot(); snap.LocalVideo {
		t.Fatal("local video flag did not flip")
	}
	waitFor(t, "patient sees doctor camera off", func() bool {
		return !patientCtrl.Snapshot().RemoteVideo
	})

	if err := doctorCtrl.SetLocalAudio(false); err != nil {
		t.Fatalf("set audio: %v", err)
	}
	waitFor(t, "patient sees doctor muted", func() bool {
		return !patientCtrl.Snapshot().RemoteAudio
	})
}

func TestFileShareAppearsInTranscript(t *testing.T) {
	dir := newFakeDirectory()
	broker := channel.NewBroker()

	patientCtrl := NewController(dir, broker, patient, "apt-1", testConfig())
	patientCtrl.Start()
	defer patientCtrl.Leave()
	doctorCtrl := NewController(dir, broker, doctor, "apt-1", testConfig())
	doctorCtrl.Start()
	defer doctorCtrl.Leave()

	waitFor(t, "both sides active", func() bool {
		return patientCtrl.Snapshot().State == StateActive &&
			doctorCtrl.Snapshot().State == StateActive
	})

	if err := doctorCtrl.ShareFile("labs.pdf", 2048); err != nil {
		t.Fatalf("share file: %v", err)
	}

	want := doctor.Name + " shared a file: labs.pdf"
	if !hasMessage(doctorCtrl.Snapshot(), want) {
		t.Fatal("sender transcript missing file share entry")
	}
	waitFor(t, "patient sees file share", func() bool {
		return hasMessage(patientCtrl.Snapshot(), want)
	})
}
