package reactor

import (
	"errors"
	"sync/atomic"
)

// Sentinel errors for NotifyChannel's fail-fast Send.
var (
	ErrNotifyClosed = errors.New("reactor: notify channel closed")
	ErrNotifyFull   = errors.New("reactor: notify channel full")
)

// NotifyMsg is one cross-thread delivery: Payload is handed to the Token
// connection's Protocol.Notify or, when Broadcast is true, to every live
// connection's Protocol.Notify (Token is then ignored).
type NotifyMsg struct {
	Token     Token
	Broadcast bool
	Payload   interface{}
}

// NotifyChannel is the bounded MPSC other goroutines use to hand work to
// the single reactor thread. Any number of producer goroutines may
// call Send concurrently; only the dispatch loop ever receives from C.
type NotifyChannel struct {
	ch      chan NotifyMsg
	closed  atomic.Bool
	dropped atomic.Int64
}

// NewNotifyChannel constructs a channel buffering up to depth pending
// messages before Send starts returning ErrNotifyFull.
func NewNotifyChannel(depth int) *NotifyChannel {
	if depth < 1 {
		depth = 1
	}
	return &NotifyChannel{ch: make(chan NotifyMsg, depth)}
}

// Send enqueues msg without blocking. It is safe to call from any
// goroutine.
func (n *NotifyChannel) Send(msg NotifyMsg) error {
	if n.closed.Load() {
		n.dropped.Add(1)
		return ErrNotifyClosed
	}
	select {
	case n.ch <- msg:
		return nil
	default:
		n.dropped.Add(1)
		return ErrNotifyFull
	}
}

// Depth reports the number of messages currently buffered.
func (n *NotifyChannel) Depth() int { return len(n.ch) }

// Dropped reports the total sends rejected so far because the channel was
// full or closed.
func (n *NotifyChannel) Dropped() int64 { return n.dropped.Load() }

// C exposes the receive side for the dispatch loop's select statement.
func (n *NotifyChannel) C() <-chan NotifyMsg { return n.ch }

// Close marks the channel closed; subsequent Sends fail with
// ErrNotifyClosed. Close does not close the underlying Go channel, since a
// concurrent Send could otherwise race a send-on-closed-channel panic —
// the dispatch loop simply stops draining C() once it observes Close.
func (n *NotifyChannel) Close() {
	n.closed.Store(true)
}

// Closed reports whether Close has been called.
func (n *NotifyChannel) Closed() bool { return n.closed.Load() }
