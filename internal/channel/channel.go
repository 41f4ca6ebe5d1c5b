package channel

import (
	"errors"

	"telehealth-app-server/internal/models"
)

// Channel is one participant's handle on an appointment's broadcast topic.
// A handle is opened once, subscribed once, and closed once; Close is safe
// to call again from teardown paths.
type Channel struct {
	broker *Broker
	topic  string
	local  models.Participant

	// All fields below are guarded by broker.mu.
	handlers   Handlers
	queue      chan event
	subscribed bool
	present    bool
	closed     bool
}

// Local returns the participant this handle was opened for.
func (c *Channel) Local() models.Participant {
	return c.local
}

// Subscribe registers the callbacks and starts the dispatch goroutine.
// It must be called before AnnouncePresence so no presence event is missed.
func (c *Channel) Subscribe(h Handlers) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	if c.subscribed {
		return errors.New("channel is already subscribed")
	}
	c.handlers = h
	c.subscribed = true
	go c.dispatch()
	return nil
}

// dispatch drains the subscriber queue on a single goroutine, so callbacks
// never run concurrently with each other.
func (c *Channel) dispatch() {
	for ev := range c.queue {
		switch ev.kind {
		case EventPresenceSync:
			if c.handlers.OnPresenceSync != nil {
				c.handlers.OnPresenceSync(ev.connected)
			}
		case EventJoin:
			if c.handlers.OnJoin != nil {
				c.handlers.OnJoin(ev.who)
			}
		case EventLeave:
			if c.handlers.OnLeave != nil {
				c.handlers.OnLeave(ev.who)
			}
		case EventChatMessage:
			if c.handlers.OnMessage != nil {
				c.handlers.OnMessage(ev.message)
			}
		case EventControlSignal:
			if c.handlers.OnControl != nil {
				c.handlers.OnControl(ev.control)
			}
		case EventFileShare:
			if c.handlers.OnFileShare != nil {
				c.handlers.OnFileShare(ev.file)
			}
		}
	}
}

// deliver enqueues an event toward this subscriber without blocking the
// relay. Caller must hold broker.mu.
func (c *Channel) deliver(ev event) {
	if !c.subscribed || c.closed {
		return
	}
	select {
	case c.queue <- ev:
	default:
		// Queue full: drop. Delivery is at-most-once by design.
	}
}

// AnnouncePresence publishes that the local participant is online. Every
// member of the topic, including the announcer, receives a join event
// followed by a presence sync with the full connected set. Announcing twice
// is a no-op.
func (c *Channel) AnnouncePresence() error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	if c.present {
		return nil
	}
	c.present = true

	t := c.broker.topics[c.topic]
	connected := t.connected()
	for m := range t.members {
		m.deliver(event{kind: EventJoin, who: c.local})
		m.deliver(event{kind: EventPresenceSync, connected: connected})
	}
	return nil
}

// PublishMessage broadcasts a chat message to every other subscriber.
// Fire-and-forget: members not subscribed at publish time never see it.
func (c *Channel) PublishMessage(msg ChatMessage) error {
	return c.broadcast(event{kind: EventChatMessage, message: msg})
}

// PublishControl broadcasts a media-flag control signal to every other subscriber.
func (c *Channel) PublishControl(sig ControlSignal) error {
	return c.broadcast(event{kind: EventControlSignal, control: sig})
}

// PublishFileShare broadcasts file-share metadata to every other subscriber.
func (c *Channel) PublishFileShare(fs FileShare) error {
	return c.broadcast(event{kind: EventFileShare, file: fs})
}

func (c *Channel) broadcast(ev event) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	for m := range c.broker.topics[c.topic].members {
		if m == c {
			continue
		}
		m.deliver(ev)
	}
	return nil
}

// Close unregisters local presence and releases the handle. Remaining
// members receive a leave event and a fresh presence sync. Closing an
// already-closed channel is a no-op, so teardown paths can call it freely.
func (c *Channel) Close() error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	t := c.broker.topics[c.topic]
	delete(t.members, c)

	if c.present {
		c.present = false
		connected := t.connected()
		for m := range t.members {
			m.deliver(event{kind: EventLeave, who: c.local})
			m.deliver(event{kind: EventPresenceSync, connected: connected})
		}
	}
	if len(t.members) == 0 {
		delete(c.broker.topics, c.topic)
	}

	if c.subscribed {
		close(c.queue)
	}
	return nil
}
