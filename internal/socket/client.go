// Package socket maintains the chat websocket connection: room joins with
// round-trip acks, own-message classification, and auto-join on room
// creation broadcasts.
package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veltadesk/pulse/internal/logger"
	"github.com/veltadesk/pulse/internal/metrics"
	"github.com/veltadesk/pulse/internal/retry"
)

// Message types exchanged with the chat backend.
const (
	MessageTypeJoin        = "join"
	MessageTypeJoined      = "joined"
	MessageTypeChatMessage = "chat_message"
	MessageTypeRoomCreated = "room_created"
)

// Message is the wire envelope for the chat socket.
type Message struct {
	Type            string         `json:"type"`
	Room            string         `json:"room,omitempty"`
	ParticipantID   string         `json:"participantId,omitempty"`
	ParticipantType string         `json:"participantType,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
}

// Config holds the socket connection settings.
type Config struct {
	URL       string
	AuthToken string

	// AutoJoinParticipantTypes filters room_created broadcasts: only rooms
	// created for one of these participant types are joined automatically.
	AutoJoinParticipantTypes []string

	// Policy governs transport reconnect backoff; nil gets the default.
	Policy *retry.Policy

	// JoinTimeout bounds the join round-trip (default 10s).
	JoinTimeout time.Duration

	// Buffer is the incoming event channel capacity (default 64).
	Buffer int

	// Dialer to use; nil falls back to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Client owns the chat socket. Joined-room state is connection-scoped:
// after a transport reconnect the caller must join its rooms again.
type Client struct {
	cfg    Config
	logger *logger.Logger
	events chan map[string]any

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	joined  map[string]string
	pending map[string]chan string
}

// NewClient creates a chat socket client.
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Policy == nil {
		cfg.Policy = retry.NewPolicy()
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 10 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &Client{
		cfg:     cfg,
		logger:  log.WithComponent("socket"),
		events:  make(chan map[string]any, cfg.Buffer),
		joined:  make(map[string]string),
		pending: make(map[string]chan string),
	}
}

// Events is the incoming message feed. Messages the client itself sent
// (classified by participant id) never appear here.
func (c *Client) Events() <-chan map[string]any {
	return c.events
}

// Connect dials the socket and starts the read loop. Any prior connection
// is torn down first.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx)
}

// Stop tears down the connection and resets the reconnect counter.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.cfg.Policy.Reset()
}

// Join enters a room and returns the participant id the backend assigned
// to this client there. The id anchors own-message classification for the
// room's whole membership.
func (c *Client) Join(ctx context.Context, room string) (string, error) {
	ack := make(chan string, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return "", fmt.Errorf("socket not connected")
	}
	if id, already := c.joined[room]; already {
		c.mu.Unlock()
		return id, nil
	}
	c.pending[room] = ack
	c.mu.Unlock()

	if err := c.write(conn, Message{Type: MessageTypeJoin, Room: room}); err != nil {
		c.mu.Lock()
		delete(c.pending, room)
		c.mu.Unlock()
		return "", fmt.Errorf("sending join for room %s: %w", room, err)
	}

	timer := time.NewTimer(c.cfg.JoinTimeout)
	defer timer.Stop()

	select {
	case id := <-ack:
		c.mu.Lock()
		c.joined[room] = id
		delete(c.pending, room)
		c.mu.Unlock()
		c.logger.Info("joined room",
			slog.String("room", room),
			slog.String("participant_id", id))
		return id, nil
	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, room)
		c.mu.Unlock()
		return "", fmt.Errorf("join ack timeout for room %s", room)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, room)
		c.mu.Unlock()
		return "", ctx.Err()
	}
}

// OwnParticipantID reports the id assigned in a room, if joined.
func (c *Client) OwnParticipantID(room string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.joined[room]
	return id, ok
}

func (c *Client) run(ctx context.Context) {
	for {
		err := c.readOnce(ctx)

		// Joined state does not survive the connection.
		c.mu.Lock()
		c.joined = make(map[string]string)
		c.mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		c.logger.Warn("socket connection ended, scheduling reconnect",
			slog.Int("attempt", c.cfg.Policy.Attempt()+1),
			slog.String("error", errString(err)))
		metrics.Reconnects.WithLabelValues("socket").Inc()

		if waitErr := c.cfg.Policy.Wait(ctx); waitErr != nil {
			return
		}
	}
}

func (c *Client) readOnce(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	conn, resp, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info("socket connected", slog.String("url", c.cfg.URL))

	// Close the transport when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			return err
		}
		c.handle(ctx, data)
	}
}

func (c *Client) handle(ctx context.Context, data []byte) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		c.logger.Warn("dropping unparsable socket message",
			slog.String("error", err.Error()))
		metrics.FramesDropped.Inc()
		return
	}

	msgType, _ := raw["type"].(string)
	switch msgType {
	case MessageTypeJoined:
		c.resolveJoin(raw)
		return
	case MessageTypeRoomCreated:
		c.maybeAutoJoin(ctx, raw)
		return
	}

	if c.isMine(raw) {
		c.logger.Debug("suppressing own message",
			slog.String("room", stringField(raw, "room")))
		return
	}

	select {
	case c.events <- raw:
	case <-ctx.Done():
	}
}

func (c *Client) resolveJoin(raw map[string]any) {
	room := stringField(raw, "room")
	id := stringField(raw, "participantId")

	c.mu.Lock()
	ack, waiting := c.pending[room]
	c.mu.Unlock()

	if !waiting {
		c.logger.Warn("unsolicited join ack", slog.String("room", room))
		return
	}
	ack <- id
}

func (c *Client) maybeAutoJoin(ctx context.Context, raw map[string]any) {
	room := stringField(raw, "room")
	pType := stringField(raw, "participantType")

	matched := false
	for _, want := range c.cfg.AutoJoinParticipantTypes {
		if pType == want {
			matched = true
			break
		}
	}
	if !matched || room == "" {
		c.logger.Debug("ignoring room_created broadcast",
			slog.String("room", room),
			slog.String("participant_type", pType))
		return
	}

	go func() {
		if _, err := c.Join(ctx, room); err != nil {
			c.logger.Warn("auto-join failed",
				slog.String("room", room),
				slog.String("error", err.Error()))
		}
	}()
}

// isMine reports whether the message was sent by this client, comparing
// the sender participant id against the id assigned at join time for the
// message's room.
func (c *Client) isMine(raw map[string]any) bool {
	room := stringField(raw, "room")
	if room == "" {
		return false
	}

	c.mu.Lock()
	own, joined := c.joined[room]
	c.mu.Unlock()
	if !joined || own == "" {
		return false
	}

	for _, key := range []string{"participantId", "senderId", "de"} {
		if sender := stringField(raw, key); sender != "" {
			return sender == own
		}
	}
	return false
}

func (c *Client) write(conn *websocket.Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	// gorilla permits one concurrent writer.
	c.mu.Lock()
	defer c.mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
