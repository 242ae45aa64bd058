package cache

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

func TestMemoryReplyChannelsDeliverToSubscriber(t *testing.T) {
	channels := NewMemoryReplyChannels()
	ctx := context.Background()

	sub, err := channels.Subscribe(ctx, "chan-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	want := domain.CaseResolved{CaseID: "case-1", Summary: "ok", ResolvedCount: 1}
	if err := channels.Publish(ctx, "chan-1", want); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := <-sub.Replies(); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("second unsubscribe: %v", err)
	}
	if channels.Subscribers("chan-1") != 0 {
		t.Fatalf("expected no subscribers left")
	}
	if _, open := <-sub.Replies(); open {
		t.Fatalf("expected replies channel closed after unsubscribe")
	}
}

func TestMemoryReplyChannelsPublishWithoutSubscriberIsNoop(t *testing.T) {
	channels := NewMemoryReplyChannels()
	if err := channels.Publish(context.Background(), "nobody", domain.CaseResolved{CaseID: "x"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	sub, _ := channels.Subscribe(context.Background(), "nobody")
	select {
	case got := <-sub.Replies():
		t.Fatalf("late subscriber must not see earlier publish, got %+v", got)
	default:
	}
}

func TestRedisReplyChannels(t *testing.T) {
	redisURL := os.Getenv("M48_TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("M48_TEST_REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, redisURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	var channels ports.ReplyChannels = NewRedisReplyChannels(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sub, err := channels.Subscribe(ctx, "test-chan")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	want := domain.CaseResolved{CaseID: "case-1", Summary: "ok", ResolvedCount: 3}
	if err := channels.Publish(ctx, "test-chan", want); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-sub.Replies():
		if got != want {
			t.Fatalf("expected %+v, got %+v", want, got)
		}
	case <-ctx.Done():
		t.Fatalf("reply not received")
	}
}
