package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"live-response-service/internal/app"
	"live-response-service/internal/feed"
	"live-response-service/internal/infra/memory"
	"live-response-service/internal/logging"
)

func TestViewRegistrySetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	questions := memory.NewQuestionRepository()
	_ = questions.CreateQuestion(ctx, sampleQuestion())
	changes := feed.NewInMemory("responses", logging.Discard())
	defer changes.Close()

	registry := NewViewRegistry(newClient(mr), time.Minute)
	service := app.NewService(app.Dependencies{
		Questions: questions,
		Responses: memory.NewResponseRepository(),
		Publisher: changes,
		Changes:   changes,
		Views:     registry,
		Logger:    logging.Discard(),
	})

	view, err := service.Watch(ctx, "q-1", app.DefaultOrder)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	key := "live:question:q-1:view:" + view.ID()
	if !mr.Exists(key) {
		t.Fatalf("expected redis key to be set")
	}
	if n, err := registry.LiveCount(ctx, "q-1"); err != nil || n != 1 {
		t.Fatalf("expected one live view, got %d err=%v", n, err)
	}

	mr.FastForward(40 * time.Second)
	if err := registry.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if ttl := mr.TTL(key); ttl != time.Minute {
		t.Fatalf("expected ttl refreshed, got %v", ttl)
	}

	view.Close()
	<-view.Done()
	if mr.Exists(key) {
		t.Fatalf("expected redis key to be removed")
	}
	if registry.Count("q-1") != 0 {
		t.Fatalf("expected local view removed")
	}
}
