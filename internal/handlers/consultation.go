package handlers

import (
	"net/http"
	"sync"

	"telehealth-app-server/internal/channel"
	"telehealth-app-server/internal/config"
	"telehealth-app-server/internal/directory"
	"telehealth-app-server/internal/middleware"
	"telehealth-app-server/internal/session"
	"telehealth-app-server/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ConsultationHandler bridges WebSocket clients onto consultation sessions.
// Each connection owns one session controller; the socket carries client
// commands inbound and state snapshots outbound.
type ConsultationHandler struct {
	Dir    *directory.Service
	Broker *channel.Broker
	Cfg    *config.Config
}

// NewConsultationHandler creates a new ConsultationHandler.
func NewConsultationHandler(dir *directory.Service, broker *channel.Broker, cfg *config.Config) *ConsultationHandler {
	return &ConsultationHandler{Dir: dir, Broker: broker, Cfg: cfg}
}

// clientCommand is a JSON frame sent by the consultation view.
type clientCommand struct {
	Type     string `json:"type"` // chat | video | audio | file-share | end
	Text     string `json:"text,omitempty"`
	Enabled  bool   `json:"enabled,omitempty"`
	FileName string `json:"fileName,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
}

// serverFrame is a JSON frame pushed to the consultation view.
type serverFrame struct {
	Type     string            `json:"type"` // state | error
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Join upgrades the connection and runs the consultation session until the
// client ends the call, navigates away, or the connection drops. Teardown
// runs on every exit path.
func (h *ConsultationHandler) Join(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	participant, err := h.Dir.Profile(userID)
	if err != nil {
		utils.NotFound(c, "User profile not found")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctrl := session.NewController(h.Dir, h.Broker, participant, c.Param("id"), session.Config{
		GracePeriod:  h.Cfg.Consultation.GracePeriod,
		TickInterval: h.Cfg.Consultation.TickInterval,
	})
	defer ctrl.Leave()

	var writeMu sync.Mutex
	writeFrame := func(frame serverFrame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.WriteJSON(frame)
	}

	done := make(chan struct{})
	defer close(done)

	// Push a fresh snapshot whenever the session state changes.
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctrl.Updates():
				snapshot := ctrl.Snapshot()
				writeFrame(serverFrame{Type: "state", Snapshot: &snapshot})
			}
		}
	}()

	ctrl.Start()
	snapshot := ctrl.Snapshot()
	writeFrame(serverFrame{Type: "state", Snapshot: &snapshot})
	if snapshot.State == session.StateError {
		return
	}

	for {
		var cmd clientCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}

		switch cmd.Type {
		case "chat":
			if err := ctrl.SendChatMessage(cmd.Text); err != nil {
				writeFrame(serverFrame{Type: "error", Error: err.Error()})
			}
		case "video":
			if err := ctrl.SetLocalVideo(cmd.Enabled); err != nil {
				writeFrame(serverFrame{Type: "error", Error: err.Error()})
			}
		case "audio":
			if err := ctrl.SetLocalAudio(cmd.Enabled); err != nil {
				writeFrame(serverFrame{Type: "error", Error: err.Error()})
			}
		case "file-share":
			if err := ctrl.ShareFile(cmd.FileName, cmd.FileSize); err != nil {
				writeFrame(serverFrame{Type: "error", Error: err.Error()})
			}
		case "end":
			ctrl.EndCall()
			final := ctrl.Snapshot()
			writeFrame(serverFrame{Type: "state", Snapshot: &final})
			return
		default:
			writeFrame(serverFrame{Type: "error", Error: "unknown command type: " + cmd.Type})
		}
	}
}
