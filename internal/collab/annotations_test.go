package collab

import (
	"context"
	"testing"
)

func TestAddAnnotation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	session := startSession(t, engine, ada)

	annotation, err := engine.AddAnnotation(ctx, session.ID, ada, AnnotationHighlight,
		AnnotationPosition{Rect: &Rect{X: 1, Y: 2, Width: 100, Height: 20}},
		Style{Color: "#ffe119", Opacity: 0.4}, "key figure")
	if err != nil {
		t.Fatalf("AddAnnotation: %v", err)
	}
	if annotation.ID == "" || annotation.AuthorID != ada.ID {
		t.Fatalf("unexpected annotation: %+v", annotation)
	}

	current, _ := engine.GetSession(ctx, session.ID)
	if len(current.Annotations) != 1 {
		t.Fatalf("expected 1 annotation, got %d", len(current.Annotations))
	}
}

func TestAddAnnotationValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	session := startSession(t, engine, ada)

	if _, err := engine.AddAnnotation(ctx, session.ID, ada, "scribble", AnnotationPosition{}, Style{}, ""); !IsValidation(err) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
	if _, err := engine.AddAnnotation(ctx, session.ID, ada, AnnotationFreehand, AnnotationPosition{}, Style{}, ""); !IsValidation(err) {
		t.Fatalf("expected validation error for freehand without points, got %v", err)
	}
	if _, err := engine.AddAnnotation(ctx, session.ID, ada, AnnotationCircle, AnnotationPosition{}, Style{}, ""); !IsValidation(err) {
		t.Fatalf("expected validation error for shape without rect, got %v", err)
	}
	if _, err := engine.AddAnnotation(ctx, session.ID, ada, AnnotationFreehand,
		AnnotationPosition{Points: []Point{{X: 1, Y: 1}, {X: 2, Y: 2}}}, Style{Color: "#000"}, ""); err != nil {
		t.Fatalf("freehand with points: %v", err)
	}
}

func TestAddAnnotationRequiresEdit(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	session := startSession(t, engine, ada)
	if _, err := engine.JoinSession(ctx, session.ID, grace, "commenter"); err != nil {
		t.Fatalf("JoinSession: %v", err)
	}

	_, err := engine.AddAnnotation(ctx, session.ID, grace, AnnotationHighlight,
		AnnotationPosition{Rect: &Rect{Width: 10, Height: 10}}, Style{}, "")
	if !IsPermissionDenied(err) {
		t.Fatalf("expected permission denied for commenter, got %v", err)
	}

	current, _ := engine.GetSession(ctx, session.ID)
	if len(current.Annotations) != 0 {
		t.Fatalf("denied annotation was persisted: %+v", current.Annotations)
	}
}
