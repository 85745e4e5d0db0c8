package reactor

import "fmt"

// Token is a stable, opaque handle to a slab-allocated resource: a listener
// or a connection. Token ranges are disjoint by construction so a bare
// Token is enough to tell which slab to consult.
type Token uint32

// TimerId identifies a timer within the connection that owns it. The
// protocol chooses the value when it issues a Timer command; the timing
// wheel's internal slot Tokens are never compared against it.
type TimerId uint32

const (
	// ListenerTokenBase is the first Token handed to a listener.
	ListenerTokenBase Token = 0
	// MaxListeners bounds the listener slab; listener tokens occupy
	// [ListenerTokenBase, ListenerTokenBase+MaxListeners).
	MaxListeners = 256
	// ConnTokenBase is the first Token handed to a connection. It sits
	// immediately past the listener range so the two slabs never collide.
	ConnTokenBase Token = Token(MaxListeners)
)

func (t Token) String() string {
	return fmt.Sprintf("token(%d)", uint32(t))
}

func (t TimerId) String() string {
	return fmt.Sprintf("timer(%d)", uint32(t))
}

// isListenerToken reports whether tok falls in the listener slab's range.
func isListenerToken(tok Token) bool {
	return tok >= ListenerTokenBase && tok < ListenerTokenBase+Token(MaxListeners)
}
