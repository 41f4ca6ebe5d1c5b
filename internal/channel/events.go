package channel

import (
	"time"

	"telehealth-app-server/internal/models"
)

// EventType identifies the class of an event relayed over a channel.
type EventType string

const (
	EventPresenceSync  EventType = "presence-sync"
	EventJoin          EventType = "join"
	EventLeave         EventType = "leave"
	EventChatMessage   EventType = "chat-message"
	EventControlSignal EventType = "control-signal"
	EventFileShare     EventType = "file-share"
)

// ControlAction identifies which local media flag a control signal toggles.
type ControlAction string

const (
	ActionToggleVideo ControlAction = "toggle-video"
	ActionToggleAudio ControlAction = "toggle-audio"
)

// ChatMessage is a chat entry relayed between participants. Sender name and
// role are denormalized so receivers can render without a lookup.
type ChatMessage struct {
	ID         string      `json:"id"`
	SenderID   string      `json:"senderId"`
	SenderName string      `json:"senderName"`
	SenderRole models.Role `json:"senderRole"`
	Text       string      `json:"text"`
	SentAt     time.Time   `json:"sentAt"`
}

// ControlSignal is a transient media-flag change notification. It is applied
// on receipt and never retained.
type ControlSignal struct {
	SenderID string        `json:"senderId"`
	Action   ControlAction `json:"action"`
	Enabled  bool          `json:"enabled"`
	SentAt   time.Time     `json:"sentAt"`
}

// FileShare announces that a participant shared a file. Only metadata is
// relayed; no file content travels over the channel.
type FileShare struct {
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	FileName   string    `json:"fileName"`
	FileSize   int64     `json:"fileSize"`
	SentAt     time.Time `json:"sentAt"`
}

// Handlers holds the subscriber callbacks for one channel. Callbacks are
// invoked one at a time on a single dispatch goroutine per subscriber, in
// arrival order.
type Handlers struct {
	OnPresenceSync func(connected []models.Participant)
	OnJoin         func(p models.Participant)
	OnLeave        func(p models.Participant)
	OnMessage      func(msg ChatMessage)
	OnControl      func(sig ControlSignal)
	OnFileShare    func(fs FileShare)
}

// event is the internal envelope queued toward each subscriber.
type event struct {
	kind      EventType
	connected []models.Participant
	who       models.Participant
	message   ChatMessage
	control   ControlSignal
	file      FileShare
}
