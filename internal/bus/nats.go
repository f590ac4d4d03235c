package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leaseguard/kestrel/internal/domain"
	"github.com/nats-io/nats.go"
)

// replyInboxPrefix marks NATS request replies, which address a
// connection-private inbox rather than a tenant subject.
const replyInboxPrefix = "_INBOX."

// NATSBus is the Pro tier bus. Tenant isolation comes from the subject
// scheme: every topic is published under "tenants.<tenantID>.<topic>",
// so cross-tenant delivery would require an explicit wildcard
// subscription that Kestrel never creates.
type NATSBus struct {
	conn *nats.Conn
}

// NewNATSBus connects to NATS. The connection retries on its own, both
// at startup and after a drop, until NATSMaxReconnects attempts are
// exhausted; publishes during a reconnect are buffered.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	maxReconnects := cfg.NATSMaxReconnects
	if maxReconnects == 0 {
		maxReconnects = 10
	}
	wait := cfg.NATSReconnectWait
	if wait <= 0 {
		wait = 5 * time.Second
	}

	opts := []nats.Option{
		nats.Name("kestrel"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 << 20),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err, "reconnecting", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			slog.Info("nats connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("nats async error", "subject", subject, "error", err)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: connect %s: %w", url, err)
	}

	slog.Info("nats bus ready", "url", url, "status", conn.Status().String())
	return &NATSBus{conn: conn}, nil
}

// Publish sends payload to the tenant-scoped subject for topic.
func (b *NATSBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" {
		return fmt.Errorf("bus: tenantID is required")
	}
	data, err := encodeEnvelope(tenantID, topic, payload)
	if err != nil {
		return err
	}
	return b.conn.Publish(b.subjectFor(tenantID, topic), data)
}

// Subscribe decodes each envelope on the tenant-scoped subject and
// hands it to handler. When the sender used Request, the envelope's
// ReplyTo carries the inbox to answer on.
func (b *NATSBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("bus: tenantID is required")
	}

	inner, err := b.conn.Subscribe(b.subjectFor(tenantID, topic), func(m *nats.Msg) {
		var env domain.Message
		if err := json.Unmarshal(m.Data, &env); err != nil {
			slog.Error("nats: dropping undecodable message", "subject", m.Subject, "error", err)
			return
		}
		if m.Reply != "" {
			env.ReplyTo = m.Reply
		}
		if err := handler(ctx, &env); err != nil {
			slog.Error("nats: handler failed",
				"subject", m.Subject,
				"message_id", env.ID,
				"error", err,
			)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("bus: subscribe %s: %w", topic, err)
	}

	return &natsSub{topic: topic, inner: inner}, nil
}

// Request publishes payload and waits for one responder to answer on
// the request's inbox.
func (b *NATSBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("bus: tenantID is required")
	}
	data, err := encodeEnvelope(tenantID, topic, payload)
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}

	reply, err := b.conn.RequestWithContext(ctx, b.subjectFor(tenantID, topic), data)
	if err != nil {
		return nil, fmt.Errorf("bus: request %s: %w", topic, err)
	}

	var env domain.Message
	if err := json.Unmarshal(reply.Data, &env); err != nil {
		return nil, fmt.Errorf("bus: decode reply: %w", err)
	}
	return env.Payload, nil
}

// Ping verifies the connection can round-trip to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if status := b.conn.Status(); status != nats.CONNECTED {
		return fmt.Errorf("bus: nats status %s", status.String())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains the connection: in-flight messages are flushed and all
// subscriptions removed before the socket closes.
func (b *NATSBus) Close() error {
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}

func (b *NATSBus) subjectFor(tenantID, topic string) string {
	if strings.HasPrefix(topic, replyInboxPrefix) {
		return topic
	}
	return "tenants." + tenantID + "." + topic
}

func encodeEnvelope(tenantID, topic string, payload []byte) ([]byte, error) {
	env := domain.Message{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Topic:    topic,
		Payload:  payload,
		SentAt:   time.Now().UnixMilli(),
	}
	data, err := json.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("bus: encode envelope: %w", err)
	}
	return data, nil
}

type natsSub struct {
	topic string
	inner *nats.Subscription
}

func (s *natsSub) Unsubscribe() error {
	return s.inner.Unsubscribe()
}

func (s *natsSub) Topic() string {
	return s.topic
}
