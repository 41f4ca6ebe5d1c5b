package session

import (
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"telehealth-app-server/internal/channel"
	"telehealth-app-server/internal/directory"
	"telehealth-app-server/internal/models"

	"github.com/google/uuid"
)

// State is the lifecycle state of a consultation session.
type State string

const (
	StateInitializing   State = "initializing"
	StateWaitingForPeer State = "waiting-for-peer"
	StateActive         State = "active"
	StateEnded          State = "ended"
	StateError          State = "error"
)

// ErrEmptyMessage is reported when a chat message is blank or whitespace-only.
var ErrEmptyMessage = errors.New("message text is empty")

// Directory is the slice of the session directory the controller needs.
type Directory interface {
	LoadAppointment(callerID, appointmentID string) (*models.Appointment, error)
	MarkInProgress(callerID, appointmentID string) error
	MarkCompleted(callerID, appointmentID string) error
}

// Config holds the controller's timing knobs.
type Config struct {
	// GracePeriod is how long the session stays active after the sole peer
	// drops before it is declared ended.
	GracePeriod time.Duration
	// TickInterval is the elapsed-time counter granularity.
	TickInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.GracePeriod <= 0 {
		c.GracePeriod = 10 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	return c
}

// Snapshot is the observable session state the presentation layer binds to.
type Snapshot struct {
	State          State                 `json:"state"`
	ErrorMessage   string                `json:"errorMessage,omitempty"`
	ElapsedSeconds int                   `json:"elapsedSeconds"`
	PeerConnected  bool                  `json:"peerConnected"`
	LocalVideo     bool                  `json:"localVideo"`
	LocalAudio     bool                  `json:"localAudio"`
	RemoteVideo    bool                  `json:"remoteVideo"`
	RemoteAudio    bool                  `json:"remoteAudio"`
	Connected      []models.Participant  `json:"connected"`
	Messages       []channel.ChatMessage `json:"messages"`
	Appointment    *models.Appointment   `json:"appointment,omitempty"`
}

// Controller is the state machine one participant's consultation view binds
// to. It exclusively owns one channel handle and one timer for its lifetime;
// both are released by a single idempotent teardown that runs on every exit
// path.
type Controller struct {
	dir           Directory
	broker        *channel.Broker
	local         models.Participant
	appointmentID string
	cfg           Config

	mu            sync.Mutex
	state         State
	appt          *models.Appointment
	ch            *channel.Channel
	messages      []channel.ChatMessage
	connected     []models.Participant
	elapsed       int
	localVideo    bool
	localAudio    bool
	remoteVideo   bool
	remoteAudio   bool
	peerConnected bool
	errMessage    string
	graceTimer    *time.Timer
	tickStop      chan struct{}
	tickerOn      bool
	ended         bool

	updates chan struct{}
}

// NewController creates a controller for one participant of one appointment.
// Identity is supplied explicitly; there is no ambient current-user state.
func NewController(dir Directory, broker *channel.Broker, local models.Participant, appointmentID string, cfg Config) *Controller {
	return &Controller{
		dir:           dir,
		broker:        broker,
		local:         local,
		appointmentID: appointmentID,
		cfg:           cfg.withDefaults(),
		state:         StateInitializing,
		localVideo:    true,
		localAudio:    true,
		updates:       make(chan struct{}, 1),
	}
}

// Start performs the directory lookup and joins the appointment's channel.
// A lookup failure is terminal: the controller lands in the error state and
// never reaches the channel.
func (c *Controller) Start() {
	appt, err := c.dir.LoadAppointment(c.local.ID, c.appointmentID)
	if err != nil {
		c.mu.Lock()
		switch {
		case errors.Is(err, directory.ErrNotFound):
			c.failLocked("Appointment not found")
		case errors.Is(err, directory.ErrForbidden):
			c.failLocked("You are not a party to this appointment")
		default:
			c.failLocked("Failed to load appointment: " + err.Error())
		}
		c.mu.Unlock()
		c.notify()
		return
	}

	ch := c.broker.Open(c.appointmentID, c.local)

	c.mu.Lock()
	c.appt = appt
	c.ch = ch
	c.state = StateWaitingForPeer
	c.mu.Unlock()

	if err := ch.Subscribe(channel.Handlers{
		OnPresenceSync: c.handlePresenceSync,
		OnJoin:         c.handleJoin,
		OnLeave:        c.handleLeave,
		OnMessage:      c.handleMessage,
		OnControl:      c.handleControl,
		OnFileShare:    c.handleFileShare,
	}); err != nil {
		c.mu.Lock()
		c.failLocked("Failed to join consultation channel: " + err.Error())
		c.mu.Unlock()
		c.notify()
		return
	}
	if err := ch.AnnouncePresence(); err != nil {
		c.mu.Lock()
		c.failLocked("Failed to announce presence: " + err.Error())
		c.mu.Unlock()
	}
	c.notify()
}

// Updates signals that the snapshot changed. Notifications coalesce; readers
// should take a fresh Snapshot on each receive.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

// Snapshot returns a copy of the observable session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := make([]channel.ChatMessage, len(c.messages))
	copy(messages, c.messages)
	connected := make([]models.Participant, len(c.connected))
	copy(connected, c.connected)

	return Snapshot{
		State:          c.state,
		ErrorMessage:   c.errMessage,
		ElapsedSeconds: c.elapsed,
		PeerConnected:  c.peerConnected,
		LocalVideo:     c.localVideo,
		LocalAudio:     c.localAudio,
		RemoteVideo:    c.remoteVideo,
		RemoteAudio:    c.remoteAudio,
		Connected:      connected,
		Messages:       messages,
		Appointment:    c.appt,
	}
}

// SendChatMessage publishes a chat message and appends it locally, so the
// sender sees it without waiting for an echo. Blank text is rejected and
// nothing is published.
func (c *Controller) SendChatMessage(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	if ch == nil {
		return channel.ErrChannelClosed
	}

	msg := channel.ChatMessage{
		ID:         uuid.New().String(),
		SenderID:   c.local.ID,
		SenderName: c.local.Name,
		SenderRole: c.local.Role,
		Text:       trimmed,
		SentAt:     time.Now(),
	}
	if err := ch.PublishMessage(msg); err != nil {
		return err
	}

	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	c.notify()
	return nil
}

// SetLocalVideo flips the local camera flag and tells the peer. The remote
// side renders the reported flag as a badge; no media stream is carried.
func (c *Controller) SetLocalVideo(enabled bool) error {
	c.mu.Lock()
	c.localVideo = enabled
	ch := c.ch
	c.mu.Unlock()
	c.notify()

	if ch == nil {
		return channel.ErrChannelClosed
	}
	return ch.PublishControl(channel.ControlSignal{
		SenderID: c.local.ID,
		Action:   channel.ActionToggleVideo,
		Enabled:  enabled,
		SentAt:   time.Now(),
	})
}

// SetLocalAudio flips the local microphone flag and tells the peer.
func (c *Controller) SetLocalAudio(enabled bool) error {
	c.mu.Lock()
	c.localAudio = enabled
	ch := c.ch
	c.mu.Unlock()
	c.notify()

	if ch == nil {
		return channel.ErrChannelClosed
	}
	return ch.PublishControl(channel.ControlSignal{
		SenderID: c.local.ID,
		Action:   channel.ActionToggleAudio,
		Enabled:  enabled,
		SentAt:   time.Now(),
	})
}

// ShareFile broadcasts file metadata to the peer and records it in the local
// transcript. No file content is transferred.
func (c *Controller) ShareFile(name string, size int64) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	if ch == nil {
		return channel.ErrChannelClosed
	}

	fs := channel.FileShare{
		SenderID:   c.local.ID,
		SenderName: c.local.Name,
		FileName:   trimmed,
		FileSize:   size,
		SentAt:     time.Now(),
	}
	if err := ch.PublishFileShare(fs); err != nil {
		return err
	}

	c.mu.Lock()
	c.messages = append(c.messages, fileShareEntry(fs))
	c.mu.Unlock()
	c.notify()
	return nil
}

// EndCall ends the session. If the local participant is the doctor, the
// appointment is marked completed. Calling it again is a no-op.
func (c *Controller) EndCall() {
	c.mu.Lock()
	c.endLocked(true)
	c.mu.Unlock()
	c.notify()
}

// Leave tears the session down without touching appointment status, for
// exits that are not an explicit end of the consultation (navigation away,
// dropped connection). Safe to call any number of times.
func (c *Controller) Leave() {
	c.mu.Lock()
	c.endLocked(false)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) handlePresenceSync(connected []models.Participant) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.connected = connected

	count := len(connected)
	switch {
	case c.state == StateWaitingForPeer && count >= 2:
		c.activateLocked()
	case c.state == StateActive && count < 2:
		c.peerLostLocked()
	case c.state == StateActive && count >= 2:
		c.peerReturnedLocked()
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) handleJoin(p models.Participant) {
	if p.ID == c.local.ID {
		return
	}
	c.mu.Lock()
	if !c.ended {
		c.messages = append(c.messages, systemEntry(p, "joined the consultation"))
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) handleLeave(p models.Participant) {
	if p.ID == c.local.ID {
		return
	}
	c.mu.Lock()
	if !c.ended {
		c.messages = append(c.messages, systemEntry(p, "left the consultation"))
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) handleMessage(msg channel.ChatMessage) {
	c.mu.Lock()
	if !c.ended {
		c.messages = append(c.messages, msg)
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) handleControl(sig channel.ControlSignal) {
	if sig.SenderID == c.local.ID {
		return
	}
	c.mu.Lock()
	switch sig.Action {
	case channel.ActionToggleVideo:
		c.remoteVideo = sig.Enabled
	case channel.ActionToggleAudio:
		c.remoteAudio = sig.Enabled
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) handleFileShare(fs channel.FileShare) {
	c.mu.Lock()
	if !c.ended {
		c.messages = append(c.messages, fileShareEntry(fs))
	}
	c.mu.Unlock()
	c.notify()
}

// activateLocked moves the session to active the instant a second
// participant is present. The clock starts here, not at open: elapsed time
// reflects actual joint session time.
func (c *Controller) activateLocked() {
	c.state = StateActive
	c.peerConnected = true
	c.remoteVideo = true
	c.remoteAudio = true
	c.startTickerLocked()

	if err := c.dir.MarkInProgress(c.local.ID, c.appointmentID); err != nil &&
		!errors.Is(err, directory.ErrInvalidTransition) {
		log.Printf("consultation %s: mark in-progress: %v", c.appointmentID, err)
	}
}

// peerLostLocked flips connectivity to reconnecting and arms the grace
// timer. The session does not end until the grace period passes without a
// rejoin.
func (c *Controller) peerLostLocked() {
	c.peerConnected = false
	if c.graceTimer == nil {
		c.graceTimer = time.AfterFunc(c.cfg.GracePeriod, c.onGraceExpired)
	}
}

func (c *Controller) peerReturnedLocked() {
	c.peerConnected = true
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
}

func (c *Controller) onGraceExpired() {
	c.mu.Lock()
	if c.state == StateActive && !c.peerConnected {
		c.endLocked(true)
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) endLocked(markStatus bool) {
	if c.ended {
		return
	}
	c.ended = true
	if c.state != StateError {
		c.state = StateEnded
	}
	c.teardownLocked()

	if markStatus && c.local.Role == models.RoleDoctor && c.appt != nil {
		if err := c.dir.MarkCompleted(c.local.ID, c.appointmentID); err != nil &&
			!errors.Is(err, directory.ErrInvalidTransition) {
			log.Printf("consultation %s: mark completed: %v", c.appointmentID, err)
		}
	}
}

func (c *Controller) failLocked(message string) {
	c.errMessage = message
	c.state = StateError
	if !c.ended {
		c.ended = true
		c.teardownLocked()
	}
}

// teardownLocked stops the timer and closes the channel. Every exit path
// funnels through here, and each resource release is safe to repeat.
func (c *Controller) teardownLocked() {
	if c.tickerOn {
		close(c.tickStop)
		c.tickerOn = false
	}
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
	if c.ch != nil {
		c.ch.Close()
	}
}

func (c *Controller) startTickerLocked() {
	c.tickStop = make(chan struct{})
	c.tickerOn = true
	stop := c.tickStop
	go func() {
		ticker := time.NewTicker(c.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.mu.Lock()
				c.elapsed++
				c.mu.Unlock()
				c.notify()
			case <-stop:
				return
			}
		}
	}()
}

// notify coalesces snapshot-changed signals; a full channel already implies
// a pending read.
func (c *Controller) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

func systemEntry(p models.Participant, what string) channel.ChatMessage {
	return channel.ChatMessage{
		ID:         uuid.New().String(),
		SenderID:   p.ID,
		SenderName: p.Name,
		SenderRole: p.Role,
		Text:       p.Name + " " + what,
		SentAt:     time.Now(),
	}
}

func fileShareEntry(fs channel.FileShare) channel.ChatMessage {
	return channel.ChatMessage{
		ID:         uuid.New().String(),
		SenderID:   fs.SenderID,
		SenderName: fs.SenderName,
		Text:       fs.SenderName + " shared a file: " + fs.FileName,
		SentAt:     fs.SentAt,
	}
}
