// Package amqp091 adapts an AMQP-0.9.1 (RabbitMQ) subscription onto the
// broker.Link contract, using streadway/amqp — grounded on the pack's
// evalgo-org-eve go.mod direct dependency and techie2000-csv2json's use
// of the same client under other_examples/ (SPEC_FULL.md §2 domain
// stack).
package amqp091

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streadway/amqp"

	"github.com/fedora-ci/kaijs-go/pkg/broker"
)

// Config configures one ephemeral, exclusive, auto-delete queue bound to
// a topic exchange, per §6.1.
type Config struct {
	URL        string
	ClientCert string
	ClientKey  string
	CACert     string
	Exchange   string
	Topic      string // binding key
}

// externalAuth implements amqp.Authentication for SASL EXTERNAL: the
// client's TLS certificate alone identifies it, so the response is a
// single NUL byte carrying no credentials.
type externalAuth struct{}

func (externalAuth) Mechanism() string { return "EXTERNAL" }
func (externalAuth) Response() string  { return "\x00" }

// Link is a broker.Link backed by one AMQP-0.9.1 consumer channel.
type Link struct {
	cfg     Config
	conn    *amqp.Connection
	ch      *amqp.Channel
	deliver <-chan amqp.Delivery

	consumed int64
	queued   int64
	closed   int32

	mu      sync.Mutex
	tagByID map[string]uint64
}

// Dial opens the TLS+SASL-EXTERNAL connection, declares an ephemeral
// exclusive auto-delete queue, binds it to cfg.Exchange/cfg.Topic, and
// starts consuming.
func Dial(ctx context.Context, cfg Config) (*Link, error) {
	tlsCfg := &tls.Config{}
	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		SASL:            []amqp.Authentication{externalAuth{}},
		TLSClientConfig: tlsCfg,
		Heartbeat:       60 * time.Second, // broker heartbeat, §5
	})
	if err != nil {
		return nil, fmt.Errorf("amqp091 dial %s: %w", cfg.URL, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp091 channel: %w", err)
	}

	q, err := ch.QueueDeclare("", false /*durable*/, true /*autoDelete*/, true /*exclusive*/, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp091 queue declare: %w", err)
	}

	if err := ch.QueueBind(q.Name, cfg.Topic, cfg.Exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp091 queue bind %s -> %s: %w", q.Name, cfg.Topic, err)
	}

	deliveries, err := ch.Consume(q.Name, "kaijs-listener", false /*autoAck*/, true /*exclusive*/, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp091 consume %s: %w", q.Name, err)
	}

	return &Link{cfg: cfg, conn: conn, ch: ch, deliver: deliveries, tagByID: map[string]uint64{}}, nil
}

// Receive blocks for the next delivery, normalizing it into a
// broker.Message per §4.1 step 1.
func (l *Link) Receive(ctx context.Context) (broker.Message, error) {
	select {
	case <-ctx.Done():
		return broker.Message{}, ctx.Err()
	case d, ok := <-l.deliver:
		if !ok {
			return broker.Message{}, fmt.Errorf("amqp091: delivery channel closed")
		}
		atomic.AddInt64(&l.queued, 1)
		headers := map[string]string{}
		for k, v := range d.Headers {
			headers[k] = fmt.Sprintf("%v", v)
		}
		msgID := d.MessageId
		if msgID == "" {
			msgID = fmt.Sprintf("tag-%d", d.DeliveryTag)
		}

		l.mu.Lock()
		l.tagByID[msgID] = d.DeliveryTag
		l.mu.Unlock()

		return broker.Message{
			Topic:     d.RoutingKey,
			Body:      d.Body,
			Headers:   headers,
			MsgID:     msgID,
			ArrivedAt: time.Now().Unix(),
		}, nil
	}
}

// Accept acks the delivery by its broker-assigned MsgID, resolved back to
// the AMQP-0.9.1 delivery tag captured at Receive time (§3.1's broker_msg_id
// is stable across retries; the delivery tag is not, so it must never be
// derived from msg.MsgID's string form).
func (l *Link) Accept(ctx context.Context, msg broker.Message) error {
	l.mu.Lock()
	tag, ok := l.tagByID[msg.MsgID]
	delete(l.tagByID, msg.MsgID)
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("amqp091 accept: no pending delivery tag for msg id %q", msg.MsgID)
	}
	if err := l.ch.Ack(tag, false); err != nil {
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
		SessionClosed: atomic.LoadInt32(&l.closed) != 0,
	}
}

// Close closes the channel then the connection, per §4.1's signal
// handling requirement.
func (l *Link) Close(ctx context.Context) error {
	atomic.StoreInt32(&l.closed, 1)
	var firstErr error
	if err := l.ch.Close(); err != nil {
		firstErr = err
	}
	if err := l.conn.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
