package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leaseguard/kestrel/internal/domain"
)

func collect(t *testing.T, b *ChannelBus, tenantID, topic string) <-chan *domain.Message {
	t.Helper()

	ch := make(chan *domain.Message, 64)
	_, err := b.Subscribe(context.Background(), tenantID, topic, func(ctx context.Context, msg *domain.Message) error {
		ch <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	return ch
}

func recvOne(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()

	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func assertSilent(t *testing.T, ch <-chan *domain.Message) {
	t.Helper()

	select {
	case msg := <-ch:
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelBus_Delivers(t *testing.T) {
	b := NewChannelBus(16)
	defer b.Close()

	ctx := context.Background()
	got := collect(t, b, "tenant-001", "screen.done")

	if err := b.Publish(ctx, "tenant-001", "screen.done", []byte("payload-1")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msg := recvOne(t, got)
	if string(msg.Payload) != "payload-1" {
		t.Errorf("payload = %q, want %q", msg.Payload, "payload-1")
	}
	if msg.TenantID != "tenant-001" {
		t.Errorf("tenantID = %q, want tenant-001", msg.TenantID)
	}
	if msg.Topic != "screen.done" {
		t.Errorf("topic = %q, want screen.done", msg.Topic)
	}
	if msg.ID == "" {
		t.Error("expected a message ID")
	}
	if msg.SentAt == 0 {
		t.Error("expected SentAt to be set")
	}

	// Publishing with no subscribers is not an error.
	if err := b.Publish(ctx, "tenant-001", "nobody.listens", []byte("x")); err != nil {
		t.Errorf("Publish to empty topic failed: %v", err)
	}
}

func TestChannelBus_TenantIsolation(t *testing.T) {
	b := NewChannelBus(16)
	defer b.Close()

	ctx := context.Background()
	first := collect(t, b, "tenant-001", "shared.topic")
	second := collect(t, b, "tenant-002", "shared.topic")

	if err := b.Publish(ctx, "tenant-001", "shared.topic", []byte("only-first")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msg := recvOne(t, first)
	if msg.TenantID != "tenant-001" {
		t.Errorf("tenantID = %q, want tenant-001", msg.TenantID)
	}
	assertSilent(t, second)
}

func TestChannelBus_FanOut(t *testing.T) {
	b := NewChannelBus(16)
	defer b.Close()

	ctx := context.Background()
	first := collect(t, b, "tenant-001", "fan.topic")
	second := collect(t, b, "tenant-001", "fan.topic")

	if err := b.Publish(ctx, "tenant-001", "fan.topic", []byte("broadcast")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	recvOne(t, first)
	recvOne(t, second)
}

func TestChannelBus_Unsubscribe(t *testing.T) {
	b := NewChannelBus(16)
	defer b.Close()

	ctx := context.Background()
	ch := make(chan *domain.Message, 8)
	sub, err := b.Subscribe(ctx, "tenant-001", "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
		ch <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if sub.Topic() != "unsub.topic" {
		t.Errorf("Topic() = %q, want unsub.topic", sub.Topic())
	}

	b.Publish(ctx, "tenant-001", "unsub.topic", []byte("before"))
	recvOne(t, ch)

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	// Idempotent
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("second Unsubscribe failed: %v", err)
	}

	b.Publish(ctx, "tenant-001", "unsub.topic", []byte("after"))
	assertSilent(t, ch)

	// The subscription slot is actually released
	b.mu.RLock()
	remaining := len(b.subs)
	b.mu.RUnlock()
	if remaining != 0 {
		t.Errorf("expected no registered subscriptions, got %d", remaining)
	}
}

func TestChannelBus_RequiresTenant(t *testing.T) {
	b := NewChannelBus(16)
	defer b.Close()

	ctx := context.Background()
	if err := b.Publish(ctx, "", "topic", []byte("x")); err == nil {
		t.Error("Publish: expected error for empty tenantID")
	}
	if _, err := b.Subscribe(ctx, "", "topic", func(ctx context.Context, msg *domain.Message) error { return nil }); err == nil {
		t.Error("Subscribe: expected error for empty tenantID")
	}
	if _, err := b.Request(ctx, "", "topic", []byte("x")); err == nil {
		t.Error("Request: expected error for empty tenantID")
	}
}

func TestChannelBus_RequestReply(t *testing.T) {
	b := NewChannelBus(16)
	defer b.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	_, err := b.Subscribe(ctx, tenantID, "echo.topic", func(ctx context.Context, msg *domain.Message) error {
		if msg.ReplyTo == "" {
			return errors.New("request message missing ReplyTo")
		}
		return b.Publish(ctx, tenantID, msg.ReplyTo, append([]byte("echo:"), msg.Payload...))
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	reply, err := b.Request(reqCtx, tenantID, "echo.topic", []byte("ping"))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if string(reply) != "echo:ping" {
		t.Errorf("reply = %q, want %q", reply, "echo:ping")
	}
}

func TestChannelBus_RequestNoResponder(t *testing.T) {
	b := NewChannelBus(16)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.Request(ctx, "tenant-001", "void.topic", []byte("anyone"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestChannelBus_DropsWhenQueueFull(t *testing.T) {
	b := NewChannelBus(1)
	defer b.Close()

	ctx := context.Background()
	started := make(chan struct{}, 4)
	gate := make(chan struct{})

	_, err := b.Subscribe(ctx, "tenant-001", "drops.topic", func(ctx context.Context, msg *domain.Message) error {
		started <- struct{}{}
		<-gate
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// First message occupies the handler, second fills the queue, third
	// has nowhere to go.
	b.Publish(ctx, "tenant-001", "drops.topic", []byte("one"))
	<-started
	b.Publish(ctx, "tenant-001", "drops.topic", []byte("two"))
	b.Publish(ctx, "tenant-001", "drops.topic", []byte("three"))
	close(gate)

	if got := b.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}

func TestChannelBus_Close(t *testing.T) {
	b := NewChannelBus(16)
	ctx := context.Background()

	if _, err := b.Subscribe(ctx, "tenant-001", "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Idempotent
	if err := b.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if err := b.Publish(ctx, "tenant-001", "close.topic", []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after close: err = %v, want ErrClosed", err)
	}
	if _, err := b.Subscribe(ctx, "tenant-001", "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	}); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after close: err = %v, want ErrClosed", err)
	}
	if err := b.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping after close: err = %v, want ErrClosed", err)
	}
}

func TestChannelBus_ConcurrentPublish(t *testing.T) {
	b := NewChannelBus(1024)
	defer b.Close()

	ctx := context.Background()
	tenantID := "tenant-load"
	const publishers = 8
	const perPublisher = 50

	got := collect(t, b, tenantID, "load.topic")

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				payload := []byte(fmt.Sprintf("p%d-%d", p, i))
				if err := b.Publish(ctx, tenantID, "load.topic", payload); err != nil {
					t.Errorf("Publish failed: %v", err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	for i := 0; i < publishers*perPublisher; i++ {
		recvOne(t, got)
	}
	if b.Dropped() != 0 {
		t.Errorf("expected no drops with a deep queue, got %d", b.Dropped())
	}
}

func TestNew(t *testing.T) {
	t.Run("Channel", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 32})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer b.Close()

		if _, ok := b.(*ChannelBus); !ok {
			t.Errorf("expected *ChannelBus, got %T", b)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "zeromq"}); err == nil {
			t.Error("expected error for unknown bus type")
		}
	})
}
