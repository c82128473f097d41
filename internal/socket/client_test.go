package socket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veltadesk/pulse/internal/logger"
	"github.com/veltadesk/pulse/internal/retry"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: slog.LevelError})
}

// chatServer is a minimal chat backend: it acks joins with a fixed
// participant id and lets tests push arbitrary messages to the client.
type chatServer struct {
	*httptest.Server

	mu    sync.Mutex
	conn  *websocket.Conn
	joins []string
	ready chan struct{}
}

func newChatServer(t *testing.T, participantID string) *chatServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	cs := &chatServer{ready: make(chan struct{}, 8)}

	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		cs.mu.Lock()
		cs.conn = conn
		cs.mu.Unlock()

		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == MessageTypeJoin {
				cs.mu.Lock()
				cs.joins = append(cs.joins, msg.Room)
				cs.mu.Unlock()
				conn.WriteJSON(map[string]any{
					"type":          MessageTypeJoined,
					"room":          msg.Room,
					"participantId": participantID,
				})
				cs.ready <- struct{}{}
			}
		}
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *chatServer) url() string {
	return "ws" + strings.TrimPrefix(cs.URL, "http")
}

func (cs *chatServer) push(t *testing.T, payload map[string]any) {
	t.Helper()
	cs.mu.Lock()
	conn := cs.conn
	cs.mu.Unlock()
	if conn == nil {
		t.Fatal("no client connected")
	}
	data, _ := json.Marshal(payload)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func (cs *chatServer) joinCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.joins)
}

func connectedClient(t *testing.T, ctx context.Context, cs *chatServer, cfg Config) *Client {
	t.Helper()
	cfg.URL = cs.url()
	if cfg.Policy == nil {
		cfg.Policy = retry.NewPolicyWith(time.Millisecond, 2*time.Millisecond)
	}
	c := NewClient(cfg, testLogger())
	c.Connect(ctx)
	t.Cleanup(c.Stop)

	// Wait for the dial to land before the test issues a Join.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		connected := c.conn != nil
		c.mu.Unlock()
		if connected {
			return c
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("client never connected")
	return nil
}

func TestJoinReturnsOwnParticipantID(t *testing.T) {
	cs := newChatServer(t, "me-42")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := connectedClient(t, ctx, cs, Config{})

	id, err := c.Join(ctx, "room-a")
	if err != nil {
		t.Fatalf("Join() error: %v", err)
	}
	if id != "me-42" {
		t.Errorf("participant id = %q", id)
	}

	// A second Join for the same room is answered locally.
	again, err := c.Join(ctx, "room-a")
	if err != nil || again != "me-42" {
		t.Errorf("repeat Join = %q, %v", again, err)
	}
	if got := cs.joinCount(); got != 1 {
		t.Errorf("server saw %d joins, want 1", got)
	}
}

func TestOwnMessagesSuppressed(t *testing.T) {
	cs := newChatServer(t, "me-42")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := connectedClient(t, ctx, cs, Config{})
	if _, err := c.Join(ctx, "room-a"); err != nil {
		t.Fatalf("Join() error: %v", err)
	}

	// Echo of the client's own send, then a peer message.
	cs.push(t, map[string]any{
		"type": MessageTypeChatMessage, "room": "room-a",
		"participantId": "me-42", "message": "mine",
	})
	cs.push(t, map[string]any{
		"type": MessageTypeChatMessage, "room": "room-a",
		"participantId": "peer-7", "message": "theirs",
	})

	select {
	case ev := <-c.Events():
		if ev["participantId"] != "peer-7" {
			t.Errorf("forwarded sender = %v, own message leaked", ev["participantId"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("peer message never forwarded")
	}

	select {
	case ev := <-c.Events():
		t.Errorf("unexpected second delivery: %v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSenderIDAliases(t *testing.T) {
	cs := newChatServer(t, "me-42")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := connectedClient(t, ctx, cs, Config{})
	if _, err := c.Join(ctx, "room-a"); err != nil {
		t.Fatalf("Join() error: %v", err)
	}

	// Legacy shape uses "de" for the sender.
	cs.push(t, map[string]any{
		"type": MessageTypeChatMessage, "room": "room-a",
		"de": "me-42", "message": "legacy echo",
	})
	cs.push(t, map[string]any{
		"type": MessageTypeChatMessage, "room": "room-a",
		"de": "peer-9", "message": "legacy peer",
	})

	select {
	case ev := <-c.Events():
		if ev["de"] != "peer-9" {
			t.Errorf("forwarded sender = %v", ev["de"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("peer message never forwarded")
	}
}

func TestRoomCreatedAutoJoin(t *testing.T) {
	cs := newChatServer(t, "me-42")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := connectedClient(t, ctx, cs, Config{
		AutoJoinParticipantTypes: []string{"agent"},
	})

	cs.push(t, map[string]any{
		"type": MessageTypeRoomCreated, "room": "room-new", "participantType": "agent",
	})

	select {
	case <-cs.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("auto-join never reached the server")
	}
	if _, ok := c.OwnParticipantID("room-new"); !ok {
		// The ack may still be propagating to the client map.
		time.Sleep(100 * time.Millisecond)
		if _, ok := c.OwnParticipantID("room-new"); !ok {
			t.Error("room-new not recorded as joined")
		}
	}

	// Non-matching participant type is ignored.
	cs.push(t, map[string]any{
		"type": MessageTypeRoomCreated, "room": "room-skip", "participantType": "customer",
	})
	time.Sleep(100 * time.Millisecond)
	if got := cs.joinCount(); got != 1 {
		t.Errorf("server saw %d joins, want 1", got)
	}
}

func TestJoinedStateDroppedOnDisconnect(t *testing.T) {
	cs := newChatServer(t, "me-42")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := connectedClient(t, ctx, cs, Config{})
	if _, err := c.Join(ctx, "room-a"); err != nil {
		t.Fatalf("Join() error: %v", err)
	}

	cs.mu.Lock()
	cs.conn.Close()
	cs.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := c.OwnParticipantID("room-a"); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("joined state survived the disconnect")
}
