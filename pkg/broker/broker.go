// Package broker defines the narrow contract the core ingestion pipeline
// consumes from either broker client library (§1: "the core consumes a
// single receive(topic, body, headers, msg_id) → fq_entry contract").
// Everything broker-specific — TLS setup, reconnect backoff, heartbeats,
// link/session bookkeeping — lives in the amqp10 and amqp091
// sub-packages, which are external-collaborator adapters, not core.
package broker

import "context"

// Message is one broker delivery, already normalized to the shape the
// listener needs to build a spool envelope (§4.1 step 1-2).
type Message struct {
	Topic    string
	Body     []byte
	Headers  map[string]string
	MsgID    string
	ArrivedAt int64 // unix seconds the listener observed the message
}

// Link is the abstract subscription contract §1 names: a source of
// broker deliveries plus a way to (positively) acknowledge each one once
// it is durably appended to the spool.
type Link interface {
	// Receive blocks until the next message is available, ctx is
	// cancelled, or the link fails.
	Receive(ctx context.Context) (Message, error)

	// Accept positively acknowledges msg. Per §4.1 step 3, the listener
	// only calls this after the envelope has been appended to the spool
	// (or, for malformed JSON, immediately — §4.1 step 2's poison-pill
	// avoidance).
	Accept(ctx context.Context, msg Message) error

	// Status reports the liveness snapshot fields §4.1 emits every
	// minute: local vs. remote open-link/session counts.
	Status() LinkStatus

	// Close tears down the link and its owning session, per §4.1's
	// signal-handling requirement (close links with their sessions, then
	// the connection).
	Close(ctx context.Context) error
}

// LinkStatus is the per-minute liveness snapshot §4.1 requires. The
// listener's status ticker exits the process non-zero when OpenLocal !=
// OpenRemote or Closed/SessionClosed is true.
type LinkStatus struct {
	Queued           int
	Consumed         int
	OpenLocal        int
	OpenRemote       int
	Closed           bool
	SessionClosed    bool
}

// Healthy reports whether s indicates the link is in the state §4.1
// requires for continued operation.
func (s LinkStatus) Healthy() bool {
	return !s.Closed && !s.SessionClosed && s.OpenLocal == s.OpenRemote
}
