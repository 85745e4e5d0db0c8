package reactor

import "testing"

func TestConnection_WantInterest(t *testing.T) {
	c := newConnection(nil, BaseProtocol{})

	if got := c.wantInterest(); got != InterestReadable {
		t.Fatalf("new connection wantInterest = %v, want Readable only", got)
	}

	c.Outbuf = append(c.Outbuf, OutEntry{Buf: NewBuffer([]byte("x"))})
	if got := c.wantInterest(); got != InterestReadable|InterestWritable {
		t.Fatalf("with queued output, wantInterest = %v, want Readable|Writable", got)
	}

	c.State = StateClosed
	c.Outbuf = nil
	if got := c.wantInterest(); got != 0 {
		t.Fatalf("closed connection wantInterest = %v, want 0", got)
	}
}

func TestConnection_TimerSlots(t *testing.T) {
	c := newConnection(nil, BaseProtocol{})
	c.ownedTimers[TimerId(1)] = Token(100)
	c.ownedTimers[TimerId(2)] = Token(200)

	slots := c.timerSlots()
	if len(slots) != 2 {
		t.Fatalf("timerSlots() returned %d entries, want 2", len(slots))
	}
}
