package reactor

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/fluxorio/reactor/pkg/logging"
)

// NATSMailbox publishes every Out() delivery as a JSON-encoded message on
// a fixed subject, letting external services observe reactor-side events
// (a connection finishing a handshake, a protocol-level alert) without the
// reactor thread ever blocking on a slow subscriber — nats.Conn.Publish is
// fire-and-forget over the client's own buffered connection.
type NATSMailbox struct {
	conn    *nats.Conn
	subject string
	log     logging.Logger
}

// NewNATSMailbox wires msg delivery to subject on an already-connected
// nats.Conn. The caller owns the connection's lifecycle.
func NewNATSMailbox(conn *nats.Conn, subject string, log logging.Logger) *NATSMailbox {
	if log == nil {
		log = logging.NewDefault()
	}
	return &NATSMailbox{conn: conn, subject: subject, log: log}
}

// Deliver implements Mailbox. The control object is unused: this mailbox
// only forwards, it never steers the reactor.
func (m *NATSMailbox) Deliver(msg interface{}, _ *Control) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("reactor: marshal notify payload: %w", err)
	}
	if err := m.conn.Publish(m.subject, data); err != nil {
		m.log.Warnf("nats publish to %s failed: %v", m.subject, err)
		return err
	}
	return nil
}
