package reactor

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordingProtocol appends a label per callback so tests can assert
// ordering guarantees across a connection's lifetime.
type recordingProtocol struct {
	BaseProtocol
	mu     *sync.Mutex
	events *[]string
	onData func(r io.Reader) *Command
}

func (p *recordingProtocol) record(ev string) {
	p.mu.Lock()
	*p.events = append(*p.events, ev)
	p.mu.Unlock()
}

func (p *recordingProtocol) OnAccept(tok Token, peer net.Addr) *Command {
	p.record("accept")
	return nil
}

func (p *recordingProtocol) OnData(r io.Reader) *Command {
	p.record("data")
	if p.onData != nil {
		return p.onData(r)
	}
	return nil
}

func (p *recordingProtocol) OnSent(msgID uint64) *Command {
	p.record("sent")
	return nil
}

func (p *recordingProtocol) OnDisconnect(tok Token) *Command {
	p.record("disconnect")
	return nil
}

func startReactor(t *testing.T, cfg Config, factory ProtocolFactory, opts ...Option) (*Reactor, string, func()) {
	t.Helper()
	r := New(cfg, opts...)
	tok, err := r.Listen("127.0.0.1:0", factory)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	l, _ := r.ctrl.listeners.Get(tok)
	addr := l.Sock.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	return r, addr, func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Errorf("reactor did not shut down")
		}
	}
}

func TestControl_WriteUnknownToken(t *testing.T) {
	c := NewControl(DefaultConfig(), NewGoNotifier(8), nil, nil, nil)
	if _, _, err := c.Write(ConnTokenBase+99, NewBuffer([]byte("x")), 1); err != ErrUnknownToken {
		t.Fatalf("Write on unknown token = %v, want ErrUnknownToken", err)
	}
}

func TestControl_WriteOutboxLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutboxByteLimit = 4

	c := NewControl(cfg, NewGoNotifier(8), nil, nil, nil)
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	tok, err := c.Register(server, BaseProtocol{})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := c.Write(tok, NewBuffer([]byte("too big to queue")), 1); err != ErrCapacityExceeded {
		t.Fatalf("Write over limit = %v, want ErrCapacityExceeded", err)
	}
}

func TestControl_DisconnectIdempotent(t *testing.T) {
	c := NewControl(DefaultConfig(), NewGoNotifier(8), nil, nil, nil)
	server, client := net.Pipe()
	defer client.Close()

	tok, err := c.Register(server, BaseProtocol{})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	c.Disconnect(tok)
	if _, _, err := c.Write(tok, NewBuffer([]byte("x")), 1); err != ErrClosed {
		t.Fatalf("Write after Disconnect = %v, want ErrClosed", err)
	}
	c.Disconnect(tok)
	c.Disconnect(tok + 17)

	// Removal is deferred to the end of the dispatch frame; after the
	// flush the token's slot is free again.
	c.flushRemovals()
	if c.conns.Contains(tok) {
		t.Fatalf("connection still in slab after removals flushed")
	}
}

func TestControl_InterestUnknownToken(t *testing.T) {
	c := NewControl(DefaultConfig(), NewGoNotifier(8), nil, nil, nil)
	if err := c.Interest(ConnTokenBase, InterestReadable); err != ErrUnknownToken {
		t.Fatalf("Interest on unknown token = %v, want ErrUnknownToken", err)
	}
}

func TestReactor_PreAcceptReject(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WheelTick = time.Millisecond

	var rejected atomic.Int32
	factory := func() Protocol {
		return &rejectingProtocol{rejected: &rejected}
	}
	r, addr, stop := startReactor(t, cfg, factory)
	defer stop()

	client, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := client.Read(make([]byte, 1)); err == nil {
		t.Fatalf("expected the rejected socket to be closed")
	}

	deadline := time.Now().Add(time.Second)
	for rejected.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rejected.Load() == 0 {
		t.Fatalf("OnPreAccept never consulted")
	}
	if n := r.ctrl.conns.Len(); n != 0 {
		t.Fatalf("rejected peer allocated a connection slot: slab holds %d", n)
	}
	if !r.ctrl.listeners.Contains(ListenerTokenBase) {
		t.Fatalf("listener dropped after rejecting a peer")
	}
}

type rejectingProtocol struct {
	BaseProtocol
	rejected *atomic.Int32
}

func (p *rejectingProtocol) OnPreAccept(peer net.Addr) bool {
	p.rejected.Add(1)
	return false
}

func TestReactor_SentPrecedesDisconnect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WheelTick = time.Millisecond

	var mu sync.Mutex
	var events []string
	factory := func() Protocol {
		return &recordingProtocol{
			mu:     &mu,
			events: &events,
			onData: func(r io.Reader) *Command {
				buf := make([]byte, 64)
				r.Read(buf)
				return Cons(Write(NewBuffer([]byte("bye")), 1), Kill(Empty()))
			},
		}
	}
	_, addr, stop := startReactor(t, cfg, factory)
	defer stop()

	client, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	client.Write([]byte("hi"))
	client.SetReadDeadline(time.Now().Add(2 * time.Second))

	reply := make([]byte, 3)
	if _, err := io.ReadFull(client, reply); err != nil {
		t.Fatalf("read final payload: %v", err)
	}
	if string(reply) != "bye" {
		t.Fatalf("final payload = %q, want \"bye\"", reply)
	}
	if _, err := client.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("expected EOF after Kill, got %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(events)
		mu.Unlock()
		if n >= 4 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	sentAt, discAt := -1, -1
	for i, ev := range events {
		switch ev {
		case "sent":
			sentAt = i
		case "disconnect":
			discAt = i
		}
	}
	if sentAt == -1 || discAt == -1 {
		t.Fatalf("missing callbacks, events = %v", events)
	}
	if sentAt > discAt {
		t.Fatalf("on_sent delivered after on_disconnect: %v", events)
	}
	if events[len(events)-1] != "disconnect" {
		t.Fatalf("on_disconnect was not the last callback: %v", events)
	}
}

func TestReactor_TimerRearm(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WheelTick = time.Millisecond

	var fires atomic.Int32
	factory := func() Protocol {
		return &rearmProtocol{fires: &fires}
	}
	_, addr, stop := startReactor(t, cfg, factory)
	defer stop()

	client, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	time.Sleep(400 * time.Millisecond)
	got := fires.Load()
	if got < 5 {
		t.Fatalf("re-armed 20ms timer fired %d times in 400ms, want >= 5", got)
	}
}

type rearmProtocol struct {
	BaseProtocol
	fires *atomic.Int32
}

func (p *rearmProtocol) OnAccept(tok Token, peer net.Addr) *Command {
	return Timer(20*time.Millisecond, TimerId(7))
}

func (p *rearmProtocol) OnTimer(id TimerId) *Command {
	if id != TimerId(7) {
		return nil
	}
	p.fires.Add(1)
	return Timer(20*time.Millisecond, id)
}

func TestReactor_CrossThreadNotifyFIFO(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WheelTick = time.Millisecond

	tokCh := make(chan Token, 1)
	factory := func() Protocol {
		return &notifyWriterProtocol{tokCh: tokCh}
	}
	r, addr, stop := startReactor(t, cfg, factory)
	defer stop()

	client, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	var tok Token
	select {
	case tok = <-tokCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("OnAccept never delivered a token")
	}

	ch := r.Channel()
	for _, part := range []string{"alpha ", "beta ", "gamma"} {
		if err := ch.Send(NotifyMsg{Token: tok, Payload: NewBuffer([]byte(part))}); err != nil {
			t.Fatalf("Send(%q): %v", part, err)
		}
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	want := "alpha beta gamma"
	got := make([]byte, len(want))
	if _, err := io.ReadFull(client, got); err != nil {
		t.Fatalf("read notify payloads: %v", err)
	}
	if string(got) != want {
		t.Fatalf("payloads arrived as %q, want %q (FIFO)", got, want)
	}
}

type notifyWriterProtocol struct {
	BaseProtocol
	tokCh  chan Token
	nextID uint64
}

func (p *notifyWriterProtocol) OnAccept(tok Token, peer net.Addr) *Command {
	select {
	case p.tokCh <- tok:
	default:
	}
	return nil
}

func (p *notifyWriterProtocol) Notify(msg interface{}) *Command {
	buf, ok := msg.(Buffer)
	if !ok {
		return nil
	}
	p.nextID++
	return Write(buf, p.nextID)
}

func TestReactor_MailboxReceivesControl(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WheelTick = time.Millisecond

	gotMsg := make(chan interface{}, 1)
	mailbox := MailboxFunc(func(msg interface{}, ctrl *Control) error {
		if ctrl == nil {
			t.Errorf("mailbox delivered without a control object")
		}
		select {
		case gotMsg <- msg:
		default:
		}
		return nil
	})

	factory := func() Protocol { return &outOnDataProtocol{} }
	_, addr, stop := startReactor(t, cfg, factory, WithMailbox(mailbox))
	defer stop()

	client, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	client.Write([]byte("ping"))

	select {
	case msg := <-gotMsg:
		if msg != "saw-data" {
			t.Fatalf("mailbox got %v, want \"saw-data\"", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Out() never reached the mailbox")
	}
}

type outOnDataProtocol struct {
	BaseProtocol
}

func (outOnDataProtocol) OnData(r io.Reader) *Command {
	buf := make([]byte, 64)
	r.Read(buf)
	return Out("saw-data")
}
