package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func setupHubServer(t *testing.T, hub *Hub, sessionID string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleConnection(w, r, sessionID, "usr_test")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// handshake sends one client message and waits for the hub handler to
// see it. Once it returns, the connection is registered in its room.
func handshake(t *testing.T, client *websocket.Conn, received <-chan Message) {
	t.Helper()
	payload, err := json.Marshal(Message{Type: TypePresenceUpdate, UpdateType: "presence_update"})
	if err != nil {
		t.Fatalf("marshal handshake: %v", err)
	}
	if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("handshake write: %v", err)
	}
	waitFor(t, received)
}

func TestHubBroadcastReachesRoom(t *testing.T) {
	hub := NewHub(nil)
	t.Cleanup(func() { hub.Close() })
	received := make(chan Message, 4)
	hub.OnMessage(func(msg Message) { received <- msg })

	srv := setupHubServer(t, hub, "ses_1")
	client := dialHub(t, srv)
	handshake(t, client, received)

	if err := hub.Send(Message{Type: TypeSessionUpdate, SessionID: "ses_1", UpdateType: "comment_added"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	var got Message
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal broadcast: %v", err)
	}
	if got.SessionID != "ses_1" || got.UpdateType != "comment_added" {
		t.Errorf("unexpected broadcast: %+v", got)
	}
}

func TestClientMessageRelayedToPeers(t *testing.T) {
	hub := NewHub(nil)
	t.Cleanup(func() { hub.Close() })
	received := make(chan Message, 4)
	hub.OnMessage(func(msg Message) { received <- msg })

	srv := setupHubServer(t, hub, "ses_1")
	first := dialHub(t, srv)
	second := dialHub(t, srv)
	handshake(t, first, received)
	handshake(t, second, received)

	payload, _ := json.Marshal(Message{Type: TypeSessionUpdate, UpdateType: "cursor_moved"})
	if err := first.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	relayed := waitFor(t, received)
	if relayed.SessionID != "ses_1" {
		t.Errorf("inbound message not pinned to room session: %+v", relayed)
	}

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := second.ReadMessage()
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	var got Message
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal relay: %v", err)
	}
	if got.UpdateType != "cursor_moved" {
		t.Errorf("unexpected relay: %+v", got)
	}
}

func TestHandleConnectionAfterClose(t *testing.T) {
	hub := NewHub(nil)
	if err := hub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	handlerDone := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleConnection(w, r, "ses_1", "usr_test")
		close(handlerDone)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if client, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		defer client.Close()
	}

	select {
	case <-handlerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleConnection blocked after hub shutdown")
	}
}

func TestReadPumpReleasedAfterClose(t *testing.T) {
	hub := NewHub(nil)
	received := make(chan Message, 4)
	hub.OnMessage(func(msg Message) { received <- msg })

	srv := setupHubServer(t, hub, "ses_1")
	client := dialHub(t, srv)
	handshake(t, client, received)

	if err := hub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	client.Close()

	// The connection teardown must not stay parked on the unregister
	// channel once the hub's loop is gone.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !stackContains("readPump") {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("readPump goroutine still alive after hub shutdown and client disconnect")
}

func stackContains(needle string) bool {
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	return strings.Contains(string(buf[:n]), needle)
}
