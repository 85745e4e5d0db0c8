package reactor

import "net"

// Interest is the readiness mask a connection is currently registered for.
type Interest uint8

const (
	InterestReadable Interest = 1 << iota
	InterestWritable
	InterestHup
)

func (i Interest) has(f Interest) bool { return i&f != 0 }

// State is a connection's lifecycle state.
type State int

const (
	StateConnecting State = iota
	StateEstablished
	StateHalfClosed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateEstablished:
		return "established"
	case StateHalfClosed:
		return "half-closed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// OutEntry pairs a queued Buffer with the MsgId the protocol supplied;
// MsgId is echoed back via OnSent once the entry's last byte has left the
// kernel buffer.
type OutEntry struct {
	Buf   Buffer
	MsgID uint64
	// final marks the entry appended by a Kill command: once it (and
	// everything queued ahead of it) has drained, the connection
	// transitions to Closed instead of waiting for another event.
	final bool
}

// Connection holds all per-socket state the control object tracks. Any
// protocol-level state lives inside Proto itself; the reactor never
// inspects it.
type Connection struct {
	Sock     net.Conn
	Token    Token
	PeerAddr net.Addr

	Outbuf      []OutEntry
	outboxBytes int

	Interest Interest
	State    State

	Proto Protocol

	// ownedTimers maps a protocol-chosen TimerId (scoped to this
	// connection) to the internal timing-wheel slot token backing it.
	ownedTimers map[TimerId]Token

	// inbound marks a connection accepted from a Listener, as opposed to
	// one this process dialed out; only inbound connections hold an
	// admission-control slot that disconnect must release.
	inbound bool

	// pendingClose is set once a Kill command has been interpreted for
	// this connection; the connection closes once Outbuf fully drains.
	pendingClose bool
	// terminal suppresses further callback delivery once OnDisconnect
	// has been scheduled or delivered for this token.
	terminal bool
}

func newConnection(sock net.Conn, proto Protocol) *Connection {
	return &Connection{
		Sock:        sock,
		Proto:       proto,
		State:       StateConnecting,
		Interest:    InterestReadable,
		ownedTimers: make(map[TimerId]Token),
	}
}

// wantInterest recomputes the interest mask: Writable iff Outbuf is
// non-empty; Readable iff State is one of the three non-terminal states.
func (c *Connection) wantInterest() Interest {
	var want Interest
	if c.State == StateConnecting || c.State == StateEstablished || c.State == StateHalfClosed {
		want |= InterestReadable
	}
	if len(c.Outbuf) > 0 {
		want |= InterestWritable
	}
	return want
}

func (c *Connection) timerSlots() []Token {
	slots := make([]Token, 0, len(c.ownedTimers))
	for _, slot := range c.ownedTimers {
		slots = append(slots, slot)
	}
	return slots
}
