// Package bus provides the event bus implementations behind
// domain.EventBus: an in-process channel bus for the Community tier
// and a NATS bus for the Pro tier.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/leaseguard/kestrel/internal/domain"
)

// ErrClosed is returned by all operations after Close.
var ErrClosed = errors.New("bus: closed")

// requestTimeout bounds Request when the caller's context has no deadline.
const requestTimeout = 30 * time.Second

// subject identifies one tenant-scoped topic.
type subject struct {
	tenant string
	topic  string
}

// ChannelBus is the Community tier bus: tenant-scoped fan-out over
// buffered Go channels within a single process. Publish never blocks;
// when a subscriber's queue is full the message is dropped for that
// subscriber and counted.
type ChannelBus struct {
	mu     sync.RWMutex
	subs   map[subject]map[uint64]*channelSub
	nextID uint64
	closed bool

	queueDepth int
	dropped    atomic.Int64
}

type channelSub struct {
	topic  string
	queue  chan *domain.Message
	cancel context.CancelFunc
	remove func()
	once   sync.Once
}

// NewChannelBus creates a bus whose subscribers each buffer up to
// queueDepth undelivered messages.
func NewChannelBus(queueDepth int) *ChannelBus {
	if queueDepth <= 0 {
		queueDepth = 1000
	}
	return &ChannelBus{
		subs:       make(map[subject]map[uint64]*channelSub),
		queueDepth: queueDepth,
	}
}

// Publish delivers payload to every subscriber of (tenantID, topic).
func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	return b.publish(tenantID, topic, "", payload)
}

func (b *ChannelBus) publish(tenantID, topic, replyTo string, payload []byte) error {
	if tenantID == "" {
		return fmt.Errorf("bus: tenantID is required")
	}

	msg := &domain.Message{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Topic:    topic,
		Payload:  payload,
		ReplyTo:  replyTo,
		SentAt:   time.Now().UnixMilli(),
	}

	// Fan out under the read lock: sends are non-blocking, and holding
	// the lock keeps Close from racing the queue handoff.
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}
	for _, sub := range b.subs[subject{tenantID, topic}] {
		select {
		case sub.queue <- msg:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers handler for (tenantID, topic). Delivery runs on a
// dedicated goroutine per subscription, so a slow handler stalls only
// its own queue.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("bus: tenantID is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	key := subject{tenantID, topic}
	id := b.nextID
	b.nextID++

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSub{
		topic:  topic,
		queue:  make(chan *domain.Message, b.queueDepth),
		cancel: cancel,
	}
	sub.remove = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if peers, ok := b.subs[key]; ok {
			delete(peers, id)
			if len(peers) == 0 {
				delete(b.subs, key)
			}
		}
	}

	if b.subs[key] == nil {
		b.subs[key] = make(map[uint64]*channelSub)
	}
	b.subs[key][id] = sub

	go sub.deliver(subCtx, handler)
	return sub, nil
}

func (s *channelSub) deliver(ctx context.Context, handler domain.MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			_ = handler(ctx, msg)
		}
	}
}

// Request publishes payload and waits for a reply. The outgoing
// envelope carries a one-shot ReplyTo topic; a responder answers with
// Publish(ctx, msg.TenantID, msg.ReplyTo, response).
func (b *ChannelBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("bus: tenantID is required")
	}

	replyTo := "kestrel.reply." + uuid.New().String()
	replies := make(chan []byte, 1)

	sub, err := b.Subscribe(ctx, tenantID, replyTo, func(ctx context.Context, msg *domain.Message) error {
		select {
		case replies <- msg.Payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := b.publish(tenantID, topic, replyTo, payload); err != nil {
		return nil, err
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("bus: no reply on %s within %s", topic, requestTimeout)
	}
}

// Ping reports whether the bus is open.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close stops all subscriptions. Queued but undelivered messages are
// discarded.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, peers := range b.subs {
		for _, sub := range peers {
			sub.cancel()
		}
	}
	b.subs = make(map[subject]map[uint64]*channelSub)
	return nil
}

// Dropped returns how many messages were discarded because a
// subscriber's queue was full.
func (b *ChannelBus) Dropped() int64 {
	return b.dropped.Load()
}

// Unsubscribe stops delivery and releases the subscription's slot.
func (s *channelSub) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		if s.remove != nil {
			s.remove()
		}
	})
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSub) Topic() string {
	return s.topic
}
