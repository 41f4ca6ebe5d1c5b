package channel

import (
	"testing"
	"time"

	"telehealth-app-server/internal/models"
)

var (
	doctor  = models.Participant{ID: "d1", Name: "Dr. Gregory House", Role: models.RoleDoctor}
	patient = models.Participant{ID: "p1", Name: "John Smith", Role: models.RolePatient}
)

// recorder funnels callback invocations into channels the test can block on.
type recorder struct {
	syncs    chan []models.Participant
	joins    chan models.Participant
	leaves   chan models.Participant
	messages chan ChatMessage
	controls chan ControlSignal
	files    chan FileShare
}

func newRecorder() *recorder {
	return &recorder{
		syncs:    make(chan []models.Participant, 16),
		joins:    make(chan models.Participant, 16),
		leaves:   make(chan models.Participant, 16),
		messages: make(chan ChatMessage, 16),
		controls: make(chan ControlSignal, 16),
		files:    make(chan FileShare, 16),
	}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnPresenceSync: func(connected []models.Participant) { r.syncs <- connected },
		OnJoin:         func(p models.Participant) { r.joins <- p },
		OnLeave:        func(p models.Participant) { r.leaves <- p },
		OnMessage:      func(msg ChatMessage) { r.messages <- msg },
		OnControl:      func(sig ControlSignal) { r.controls <- sig },
		OnFileShare:    func(fs FileShare) { r.files <- fs },
	}
}

func recvSync(t *testing.T, ch chan []models.Participant) []models.Participant {
	t.Helper()
	select {
	case connected := <-ch:
		return connected
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for presence sync")
		return nil
	}
}

func recvMessage(t *testing.T, ch chan ChatMessage) ChatMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chat message")
		return ChatMessage{}
	}
}

func TestTopicName(t *testing.T) {
	if got := TopicName("apt-1"); got != "consultation:apt-1" {
		t.Fatalf("TopicName(apt-1) = %q", got)
	}
}

func TestPresenceLifecycle(t *testing.T) {
	broker := NewBroker()

	recA := newRecorder()
	chA := broker.Open("apt-1", doctor)
	if err := chA.Subscribe(recA.handlers()); err != nil {
		t.Fatalf("subscribe A: %v", err)
	}
	if err := chA.AnnouncePresence(); err != nil {
		t.Fatalf("announce A: %v", err)
	}

	// The announcer sees its own join and a sync with one member.
	if joined := <-recA.joins; joined.ID != doctor.ID {
		t.Fatalf("expected join for %s, got %s", doctor.ID, joined.ID)
	}
	if connected := recvSync(t, recA.syncs); len(connected) != 1 {
		t.Fatalf("expected 1 connected, got %d", len(connected))
	}

	recB := newRecorder()
	chB := broker.Open("apt-1", patient)
	if err := chB.Subscribe(recB.handlers()); err != nil {
		t.Fatalf("subscribe B: %v", err)
	}
	if err := chB.AnnouncePresence(); err != nil {
		t.Fatalf("announce B: %v", err)
	}

	// Both sides converge on a sync with two members.
	if connected := recvSync(t, recA.syncs); len(connected) != 2 {
		t.Fatalf("A expected 2 connected, got %d", len(connected))
	}
	if connected := recvSync(t, recB.syncs); len(connected) != 2 {
		t.Fatalf("B expected 2 connected, got %d", len(connected))
	}

	// B leaving notifies A with a leave and a shrunken sync.
	if err := chB.Close(); err != nil {
		t.Fatalf("close B: %v", err)
	}
	if left := <-recA.leaves; left.ID != patient.ID {
		t.Fatalf("expected leave for %s, got %s", patient.ID, left.ID)
	}
	if connected := recvSync(t, recA.syncs); len(connected) != 1 {
		t.Fatalf("A expected 1 connected after leave, got %d", len(connected))
	}

	chA.Close()
}

func TestMessageRoundTripPreservesOrder(t *testing.T) {
	broker := NewBroker()

	recA := newRecorder()
	chA := broker.Open("apt-1", doctor)
	chA.Subscribe(recA.handlers())
	chA.AnnouncePresence()

	recB := newRecorder()
	chB := broker.Open("apt-1", patient)
	chB.Subscribe(recB.handlers())
	chB.AnnouncePresence()

	first := ChatMessage{ID: "m1", SenderID: doctor.ID, SenderName: doctor.Name, Text: "Hello", SentAt: time.Now()}
	second := ChatMessage{ID: "m2", SenderID: doctor.ID, SenderName: doctor.Name, Text: "How are you feeling?", SentAt: time.Now()}
	if err := chA.PublishMessage(first); err != nil {
		t.Fatalf("publish first: %v", err)
	}
	if err := chA.PublishMessage(second); err != nil {
		t.Fatalf("publish second: %v", err)
	}

	got := recvMessage(t, recB.messages)
	if got.Text != "Hello" || got.SenderID != doctor.ID {
		t.Fatalf("unexpected first message: %+v", got)
	}
	if got := recvMessage(t, recB.messages); got.Text != "How are you feeling?" {
		t.Fatalf("messages out of order, got %q", got.Text)
	}

	// The sender never receives its own broadcast.
	select {
	case msg := <-recA.messages:
		t.Fatalf("sender received its own message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}

	chA.Close()
	chB.Close()
}

func TestControlAndFileShareRelay(t *testing.T) {
	broker := NewBroker()

	chA := broker.Open("apt-1", doctor)
	chA.Subscribe(Handlers{})
	chA.AnnouncePresence()

	recB := newRecorder()
	chB := broker.Open("apt-1", patient)
	chB.Subscribe(recB.handlers())
	chB.AnnouncePresence()

	if err := chA.PublishControl(ControlSignal{SenderID: doctor.ID, Action: ActionToggleVideo, Enabled: false, SentAt: time.Now()}); err != nil {
		t.Fatalf("publish control: %v", err)
	}
	sig := <-recB.controls
	if sig.Action != ActionToggleVideo || sig.Enabled {
		t.Fatalf("unexpected control signal: %+v", sig)
	}

	if err := chA.PublishFileShare(FileShare{SenderID: doctor.ID, SenderName: doctor.Name, FileName: "labs.pdf", FileSize: 2048, SentAt: time.Now()}); err != nil {
		t.Fatalf("publish file share: %v", err)
	}
	fs := <-recB.files
	if fs.FileName != "labs.pdf" || fs.FileSize != 2048 {
		t.Fatalf("unexpected file share: %+v", fs)
	}

	chA.Close()
	chB.Close()
}

func TestAtMostOnceDelivery(t *testing.T) {
	broker := NewBroker()

	chA := broker.Open("apt-1", doctor)
	chA.Subscribe(Handlers{})
	chA.AnnouncePresence()

	// Published before the patient opens a handle: lost forever.
	chA.PublishMessage(ChatMessage{ID: "m0", SenderID: doctor.ID, Text: "anyone there?", SentAt: time.Now()})

	recB := newRecorder()
	chB := broker.Open("apt-1", patient)
	chB.Subscribe(recB.handlers())
	chB.AnnouncePresence()

	select {
	case msg := <-recB.messages:
		t.Fatalf("late subscriber received earlier message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}

	chA.Close()
	chB.Close()
}

func TestUseAfterClose(t *testing.T) {
	broker := NewBroker()

	ch := broker.Open("apt-1", doctor)
	ch.Subscribe(Handlers{})
	ch.AnnouncePresence()

	if err := ch.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}

	if err := ch.PublishMessage(ChatMessage{ID: "m1", Text: "hi"}); err != ErrChannelClosed {
		t.Fatalf("publish after close: expected ErrChannelClosed, got %v", err)
	}
	if err := ch.AnnouncePresence(); err != ErrChannelClosed {
		t.Fatalf("announce after close: expected ErrChannelClosed, got %v", err)
	}
}
