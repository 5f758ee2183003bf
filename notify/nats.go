package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/teranos/sentinel/errors"
)

// DefaultSubject is used when no NATS subject is configured.
const DefaultSubject = "sentinel.reports"

// flushTimeout bounds the flush when the caller's context has no deadline;
// nats.go refuses to flush without one.
const flushTimeout = 5 * time.Second

// publisher is the part of *nats.Conn the notifier uses.
type publisher interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATSNotifier publishes each message as JSON on a subject.
type NATSNotifier struct {
	pub     publisher
	conn    *nats.Conn
	subject string
}

// NewNATSNotifier connects to url. Reconnects are unbounded so a restarted
// broker does not require a daemon restart.
func NewNATSNotifier(url, subject string, opts ...nats.Option) (*NATSNotifier, error) {
	opts = append([]nats.Option{nats.Name("sentinel"), nats.MaxReconnects(-1)}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, errors.WrapNotify(err, "connect to nats at %s", url)
	}
	n := newNATSNotifier(nc, subject)
	n.conn = nc
	return n, nil
}

func newNATSNotifier(pub publisher, subject string) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSNotifier{pub: pub, subject: subject}
}

// Subject returns the subject messages are published on.
func (n *NATSNotifier) Subject() string {
	return n.subject
}

func (n *NATSNotifier) Notify(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.WrapNotify(err, "marshal nats payload")
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return errors.WrapNotify(err, "publish to %s", n.subject)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := n.pub.FlushWithContext(ctx); err != nil {
		return errors.WrapNotify(err, "flush %s", n.subject)
	}
	return nil
}

// Close drains the connection, falling back to a hard close.
func (n *NATSNotifier) Close() {
	if n == nil || n.conn == nil {
		return
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}
