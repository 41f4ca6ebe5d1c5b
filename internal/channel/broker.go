package channel

import (
	"errors"
	"sync"

	"telehealth-app-server/internal/models"
)

// ErrChannelClosed is returned when a channel handle is used after Close.
var ErrChannelClosed = errors.New("channel is closed")

// subscriberQueueSize bounds the per-subscriber event queue. A subscriber
// that falls this far behind starts losing events instead of blocking the
// relay (at-most-once, best-effort delivery).
const subscriberQueueSize = 64

const topicPrefix = "consultation:"

// TopicName derives the channel name for an appointment. All participants of
// the same appointment converge on the same topic without a discovery step.
func TopicName(appointmentID string) string {
	return topicPrefix + appointmentID
}

// Broker is the single in-process relay point for consultation channels.
// Because every publish passes through the broker's lock, each subscriber
// observes events of one class in the order they were relayed.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	members map[*Channel]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{topics: make(map[string]*topic)}
}

// Open registers a new channel handle on the appointment's topic. The local
// participant is not announced as present until AnnouncePresence is called.
func (b *Broker) Open(appointmentID string, local models.Participant) *Channel {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := TopicName(appointmentID)
	t, ok := b.topics[name]
	if !ok {
		t = &topic{members: make(map[*Channel]struct{})}
		b.topics[name] = t
	}

	ch := &Channel{
		broker: b,
		topic:  name,
		local:  local,
		queue:  make(chan event, subscriberQueueSize),
	}
	t.members[ch] = struct{}{}
	return ch
}

// connected returns the participants currently announced on the topic.
// Caller must hold b.mu.
func (t *topic) connected() []models.Participant {
	connected := make([]models.Participant, 0, len(t.members))
	for m := range t.members {
		if m.present {
			connected = append(connected, m.local)
		}
	}
	return connected
}
