package sink

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/trade-sonic/quote-stream/internal/feed"
)

// Publisher is the part of *nats.Conn the relay needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS relays the raw JSON of every event to a single subject.
type NATS struct {
	pub     Publisher
	subject string
	conn    *nats.Conn
}

// NewNATS creates a relay publishing through pub.
func NewNATS(pub Publisher, subject string) (*NATS, error) {
	if subject == "" {
		return nil, ErrNoSubject
	}
	return &NATS{pub: pub, subject: subject}, nil
}

// DialNATS connects to the NATS server at url and returns a relay owning
// the connection.
func DialNATS(url, subject, clientName string) (*NATS, error) {
	if subject == "" {
		return nil, ErrNoSubject
	}
	nc, err := nats.Connect(url, nats.Name(clientName), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("error connecting to nats: %w", err)
	}
	return &NATS{pub: nc, subject: subject, conn: nc}, nil
}

// Deliver implements session.Sink
func (n *NATS) Deliver(ctx context.Context, r feed.Response) error {
	data, err := rawJSON(r)
	if err != nil {
		return err
	}
	if err := n.pub.Publish(n.subject, []byte(data)); err != nil {
		return fmt.Errorf("error publishing to %s: %w", n.subject, err)
	}
	return nil
}

// Close drains the connection if the relay owns one.
func (n *NATS) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
