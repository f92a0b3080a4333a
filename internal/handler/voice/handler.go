package voice

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	voicemodel "github.com/voxlay/voxlay/internal/model/voice"
	"github.com/voxlay/voxlay/internal/service/relay"
)

const (
	readDeadline = 60 * time.Second
	pingInterval = 54 * time.Second
	sendBuffer   = 64
)

// Handler bridges client WebSocket connections to the session orchestrator.
type Handler struct {
	orch     *relay.Orchestrator
	upgrader websocket.Upgrader
}

// New creates the voice WebSocket handler.
func New(orch *relay.Orchestrator) *Handler {
	return &Handler{
		orch: orch,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the voice endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/voice/ws/{sessionID}", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}
	conversationID := r.URL.Query().Get("conversationId")
	personality := r.URL.Query().Get("personality")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[voice] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[voice] new connection session=%s personality=%s", sessionID, personality)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := newChannel(conn)
	defer client.stop()

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})
	go h.pingLoop(ctx, conn)

	streamID, err := h.orch.Start(ctx, client, sessionID, conversationID, personality)
	if err != nil {
		log.Printf("[voice] session start failed session=%s: %v", sessionID, err)
		return
	}
	defer h.orch.Teardown(context.WithoutCancel(ctx), streamID)

	for {
		var msg voicemodel.InboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[voice] read error session=%s: %v", sessionID, err)
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(readDeadline))

		// Synchronous dispatch: inbound frames for this session are handled
		// one at a time in arrival order.
		h.orch.HandleMessage(ctx, streamID, client, msg)
	}
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var errChannelClosed = errors.New("client channel closed")

// channel serializes outbound writes through one goroutine so frame order
// matches enqueue order regardless of which goroutine sends.
type channel struct {
	conn *websocket.Conn
	out  chan voicemodel.OutboundMessage
	done chan struct{}
}

func newChannel(conn *websocket.Conn) *channel {
	c := &channel{
		conn: conn,
		out:  make(chan voicemodel.OutboundMessage, sendBuffer),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// Send implements relay.ClientChannel.
func (c *channel) Send(msg voicemodel.OutboundMessage) error {
	select {
	case c.out <- msg:
		return nil
	case <-c.done:
		return errChannelClosed
	}
}

func (c *channel) writeLoop() {
	for {
		select {
		case msg := <-c.out:
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("[voice] write failed: %v", err)
			}
		case <-c.done:
			return
		}
	}
}

func (c *channel) stop() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}
