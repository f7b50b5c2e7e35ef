// Package amqp10 adapts an AMQP-1.0 (Unified Message Bus) subscription
// onto the broker.Link contract, using Azure/go-amqp — the teacher's
// domain stack has no AMQP client, so this adapter is grounded directly
// on spec.md §6.1 and is a standard ecosystem choice for an AMQP-1.0
// client with link/session semantics (SPEC_FULL.md §2 domain stack,
// "named, not grounded").
package amqp10

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Azure/go-amqp"

	"github.com/fedora-ci/kaijs-go/pkg/broker"
)

// Config configures one UMB subscription, per §6.1's queue-naming
// convention: Consumer.<client_name>.<subscription_id>.<topic>.
type Config struct {
	URL          string
	ClientCert   string
	ClientKey    string
	CACert       string
	ClientName   string
	SubscriberID string
	Topic        string
	Selector     string // JMS selector, applied via apache.org:selector-filter:string
	PrefetchSize int
}

// queueName renders the Consumer.<client>.<sub>.<topic> address §6.1
// requires, with the prefetch-size query parameter appended.
func (c Config) queueName() string {
	return fmt.Sprintf("Consumer.%s.%s.%s?consumer.prefetchSize=%d",
		c.ClientName, c.SubscriberID, c.Topic, c.PrefetchSize)
}

// Link is a broker.Link backed by one AMQP-1.0 receiver link.
type Link struct {
	cfg    Config
	conn   *amqp.Conn
	sess   *amqp.Session
	recv   *amqp.Receiver

	consumed  int64
	queued    int64
	closed    int32
	sessClose int32

	mu      sync.Mutex
	pending map[string]*amqp.Message // msgID -> raw message, for Accept
}

// Dial opens the TLS client-cert connection, session, and selector-
// filtered receiver link cfg describes.
func Dial(ctx context.Context, cfg Config) (*Link, error) {
	tlsCfg := &tls.Config{}
	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	conn, err := amqp.Dial(ctx, cfg.URL, &amqp.ConnOptions{
		TLSConfig:  tlsCfg,
		IdleTimeout: 60 * time.Second, // broker heartbeat, §5
	})
	if err != nil {
		return nil, fmt.Errorf("amqp10 dial %s: %w", cfg.URL, err)
	}

	sess, err := conn.NewSession(ctx, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp10 session: %w", err)
	}

	recvOpts := &amqp.ReceiverOptions{Credit: int32(cfg.PrefetchSize)}
	if cfg.Selector != "" {
		// JMS selector filter, type code 0x468c00000004 per §6.1.
		recvOpts.Filters = []amqp.LinkFilter{
			amqp.NewSelectorFilter(cfg.Selector),
		}
	}

	recv, err := sess.NewReceiver(ctx, cfg.queueName(), recvOpts)
	if err != nil {
		sess.Close(ctx)
		conn.Close()
		return nil, fmt.Errorf("amqp10 receiver %s: %w", cfg.queueName(), err)
	}

	return &Link{cfg: cfg, conn: conn, sess: sess, recv: recv, pending: map[string]*amqp.Message{}}, nil
}

// Receive blocks for the next delivery, normalizing it into a
// broker.Message per §4.1 step 1.
func (l *Link) Receive(ctx context.Context) (broker.Message, error) {
	raw, err := l.recv.Receive(ctx, nil)
	if err != nil {
		return broker.Message{}, err
	}

	msgID := fmt.Sprintf("%v", messageID(raw))
	headers := map[string]string{}
	for k, v := range raw.ApplicationProperties {
		headers[k] = fmt.Sprintf("%v", v)
	}

	l.mu.Lock()
	l.pending[msgID] = raw
	l.mu.Unlock()
	atomic.AddInt64(&l.queued, 1)

	return broker.Message{
		Topic:     l.cfg.Topic,
		Body:      raw.GetData(),
		Headers:   headers,
		MsgID:     msgID,
		ArrivedAt: time.Now().Unix(),
	}, nil
}

func messageID(m *amqp.Message) interface{} {
	if m.Properties != nil {
		return m.Properties.MessageID
	}
	return ""
}

// Accept positively acknowledges msg (§4.1 step 3).
func (l *Link) Accept(ctx context.Context, msg broker.Message) error {
	l.mu.Lock()
	raw, ok := l.pending[msg.MsgID]
	delete(l.pending, msg.MsgID)
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("amqp10: no pending delivery for msg id %q", msg.MsgID)
	}
	if err := l.recv.AcceptMessage(ctx, raw); err != nil {
		return err
	}
	atomic.AddInt64(&l.consumed, 1)
	return nil
}

// Status reports the per-minute liveness snapshot §4.1 requires.
func (l *Link) Status() broker.LinkStatus {
	return broker.LinkStatus{
		Queued:        int(atomic.LoadInt64(&l.queued)),
		Consumed:      int(atomic.LoadInt64(&l.consumed)),
		OpenLocal:     1,
		OpenRemote:    1,
		Closed:        atomic.LoadInt32(&l.closed) != 0,
		SessionClosed: atomic.LoadInt32(&l.sessClose) != 0,
	}
}

// Close closes the receiver link, its session, and the connection, in
// that order, per §4.1's signal-handling requirement.
func (l *Link) Close(ctx context.Context) error {
	atomic.StoreInt32(&l.closed, 1)
	var firstErr error
	if err := l.recv.Close(ctx); err != nil {
		firstErr = err
	}
	atomic.StoreInt32(&l.sessClose, 1)
	if err := l.sess.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := l.conn.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
