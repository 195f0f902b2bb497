package collab

import (
	"context"
	"fmt"
	"testing"
	"time"

	"propdesk/collab/internal/checkpoint"
)

func TestNotificationCapKeepsNewest(t *testing.T) {
	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()
	session := startSession(t, engine, ada)
	if _, err := engine.JoinSession(ctx, session.ID, grace, "editor"); err != nil {
		t.Fatalf("JoinSession: %v", err)
	}

	total := notificationCap + 5
	for i := 0; i < total; i++ {
		clock.Advance(time.Second)
		if _, err := engine.AddComment(ctx, session.ID, grace, fmt.Sprintf("comment %d", i), Position{}, nil, nil); err != nil {
			t.Fatalf("AddComment %d: %v", i, err)
		}
	}

	notes := engine.GetUserNotifications(ctx, ada.ID, session.ID)
	if len(notes) != notificationCap {
		t.Fatalf("expected %d notifications, got %d", notificationCap, len(notes))
	}
	// Newest first, oldest dropped off the end.
	if !notes[0].Timestamp.After(notes[len(notes)-1].Timestamp) {
		t.Fatal("expected newest notification first")
	}
	if got := notes[len(notes)-1].Timestamp.Sub(notes[0].Timestamp); got != -time.Duration(notificationCap-1)*time.Second {
		t.Fatalf("expected the oldest 5 notifications dropped, span %v", got)
	}
}

func TestNotificationSessionFilter(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	first := startSession(t, engine, ada)
	second := startSession(t, engine, ada)
	for _, id := range []string{first.ID, second.ID} {
		if _, err := engine.JoinSession(ctx, id, grace, "commenter"); err != nil {
			t.Fatalf("JoinSession: %v", err)
		}
	}

	notes := engine.GetUserNotifications(ctx, ada.ID, first.ID)
	if len(notes) != 1 || notes[0].SessionID != first.ID {
		t.Fatalf("expected one notification scoped to first session, got %+v", notes)
	}
	all := engine.GetUserNotifications(ctx, ada.ID, "")
	if len(all) != 2 {
		t.Fatalf("expected two notifications unfiltered, got %d", len(all))
	}
}

func TestMarkNotificationsAsRead(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	session := startSession(t, engine, ada)
	if _, err := engine.JoinSession(ctx, session.ID, grace, "commenter"); err != nil {
		t.Fatalf("JoinSession: %v", err)
	}

	notes := engine.GetUserNotifications(ctx, ada.ID, session.ID)
	if len(notes) != 1 || notes[0].Read {
		t.Fatalf("expected one unread notification, got %+v", notes)
	}

	engine.MarkNotificationsAsRead(ctx, ada.ID, []string{notes[0].ID, "ntf_missing"})

	after := engine.GetUserNotifications(ctx, ada.ID, session.ID)
	if !after[0].Read {
		t.Fatal("notification should be read")
	}
}

func TestNotificationsRestoredFromCheckpoint(t *testing.T) {
	clock := newTestClock()
	store := checkpoint.NewMemoryStore()
	first := New(Deps{Store: store, Now: clock.Now})
	ctx := context.Background()

	session, err := first.StartSession(ctx, "doc_1", "prop_1", "proposal", "Q3 review", ada)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := first.JoinSession(ctx, session.ID, grace, "commenter"); err != nil {
		t.Fatalf("JoinSession: %v", err)
	}
	first.Close()

	second := New(Deps{Store: store, Now: clock.Now})
	defer second.Close()

	notes := second.GetUserNotifications(ctx, ada.ID, "")
	if len(notes) != 1 || notes[0].Type != NotifyUserJoined {
		t.Fatalf("expected restored user_joined notification, got %+v", notes)
	}
}
