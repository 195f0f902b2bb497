package transport

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedisPeers(t *testing.T) (*RedisChannel, *RedisChannel) {
	s := miniredis.RunT(t)

	clientA := redis.NewClient(&redis.Options{Addr: s.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		clientA.Close()
		clientB.Close()
	})

	a := NewRedisChannel(clientA, "collab-updates", nil)
	b := NewRedisChannel(clientB, "collab-updates", nil)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func waitFor(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestRedisChannelDelivery(t *testing.T) {
	a, b := setupRedisPeers(t)

	received := make(chan Message, 1)
	b.OnMessage(func(msg Message) { received <- msg })

	sent := Message{
		Type:       TypeSessionUpdate,
		SessionID:  "ses_1",
		UpdateType: "comment_added",
		Data:       []byte(`{"commentId":"cmt_1"}`),
		Timestamp:  time.Now().UTC(),
	}
	if err := a.Send(sent); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got := waitFor(t, received)
	if got.SessionID != "ses_1" || got.UpdateType != "comment_added" {
		t.Errorf("unexpected message: %+v", got)
	}
	if string(got.Data) != `{"commentId":"cmt_1"}` {
		t.Errorf("unexpected data: %s", got.Data)
	}
}

func TestRedisChannelSkipsOwnMessages(t *testing.T) {
	a, b := setupRedisPeers(t)

	selfDelivery := make(chan Message, 1)
	a.OnMessage(func(msg Message) { selfDelivery <- msg })

	peerDelivery := make(chan Message, 1)
	b.OnMessage(func(msg Message) { peerDelivery <- msg })

	if err := a.Send(Message{Type: TypePresenceUpdate, SessionID: "ses_2"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	waitFor(t, peerDelivery)
	select {
	case msg := <-selfDelivery:
		t.Errorf("sender must not hear its own broadcast, got %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisChannelSendAfterClose(t *testing.T) {
	a, _ := setupRedisPeers(t)

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := a.Send(Message{Type: TypeSessionUpdate}); err != ErrChannelClosed {
		t.Errorf("expected ErrChannelClosed, got %v", err)
	}
}
