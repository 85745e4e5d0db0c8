package reactor

import (
	"io"
	"net"
)

// Protocol is the capability set the reactor requires of user code.
// One Protocol instance is constructed per connection by a ProtocolFactory;
// the reactor treats its internal state as opaque and never inspects it.
//
// Every method may return a Command tree describing how the reactor should
// react; a nil Command is a valid "do nothing" response. BaseProtocol
// supplies nil-returning defaults for every method so implementations only
// override the callbacks they care about.
type Protocol interface {
	// OnPreAccept is invoked before a listener accepts an inbound socket.
	// Returning false rejects the connection; no Token is ever allocated
	// for it.
	OnPreAccept(peer net.Addr) bool

	// OnAccept is invoked once an accepted connection has a Token.
	OnAccept(tok Token, peer net.Addr) *Command

	// OnConnect is invoked once an outbound connection reaches
	// Established.
	OnConnect(tok Token) *Command

	// OnData is invoked on a readable Established connection. r yields
	// the bytes available without blocking.
	OnData(r io.Reader) *Command

	// OnSent is invoked after the last byte of the OutEntry carrying
	// msgID has left the kernel buffer.
	OnSent(msgID uint64) *Command

	// OnTimer is invoked when a timer this connection owns fires.
	// Returning Timer(delay, same id) re-arms it.
	OnTimer(id TimerId) *Command

	// OnDisconnect is invoked exactly once, when the connection is torn
	// down (socket closed, timers cleared, queued output released); its
	// slab slot is freed at the end of the same dispatch. It is always the
	// last callback delivered for tok.
	OnDisconnect(tok Token) *Command

	// Notify is invoked when an application message targeted at this
	// connection arrives over the cross-thread notify channel.
	Notify(msg interface{}) *Command
}

// ProtocolFactory constructs one Protocol instance per connection, at
// accept or connect time.
type ProtocolFactory func() Protocol

// BaseProtocol implements every Protocol method as a no-op. Embed it in a
// concrete protocol type and override only the callbacks that matter.
type BaseProtocol struct{}

func (BaseProtocol) OnPreAccept(net.Addr) bool         { return true }
func (BaseProtocol) OnAccept(Token, net.Addr) *Command { return nil }
func (BaseProtocol) OnConnect(Token) *Command          { return nil }
func (BaseProtocol) OnData(io.Reader) *Command         { return nil }
func (BaseProtocol) OnSent(uint64) *Command            { return nil }
func (BaseProtocol) OnTimer(TimerId) *Command          { return nil }
func (BaseProtocol) OnDisconnect(Token) *Command       { return nil }
func (BaseProtocol) Notify(interface{}) *Command       { return nil }
