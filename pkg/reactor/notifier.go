package reactor

import (
	"io"
	"net"
	"time"
)

// ReadyEvent reports an interest transition observed by a Notifier for one
// registered connection. A single event may report multiple interests at
// once (e.g. readable and hup together on final drain).
type ReadyEvent struct {
	Token    Token
	Interest Interest
}

// Notifier is the abstract readiness-detection contract the control object
// dispatches against. Which OS primitive (epoll, kqueue, IOCP, poll) backs
// it, if any, is an implementation detail the control object never sees.
type Notifier interface {
	// Register starts watching sock for the given interest and reports
	// transitions against tok on the channel returned by Events.
	Register(tok Token, sock net.Conn, interest Interest) error

	// Reregister updates the interest mask for an already-registered
	// token.
	Reregister(tok Token, interest Interest) error

	// Deregister stops watching tok. It is idempotent.
	Deregister(tok Token)

	// Reader returns the buffered reader the Notifier peeked bytes
	// through for tok, so callers read through the same buffer rather
	// than racing it on the raw socket. It returns false once tok has
	// been deregistered.
	Reader(tok Token) (io.Reader, bool)

	// Events returns the channel readiness transitions are delivered on.
	Events() <-chan ReadyEvent

	// Close stops every watcher goroutine and releases resources. Close
	// does not close any registered net.Conn.
	Close() error
}

// pollInterval bounds how quickly a goNotifier watcher notices a newly
// readable or writable socket, trading a small fixed latency for never
// touching a raw platform syscall.
const pollInterval = 2 * time.Millisecond
