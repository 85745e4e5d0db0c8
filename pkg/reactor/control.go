package reactor

import (
	"net"
	"time"

	"github.com/fluxorio/reactor/pkg/logging"
	"github.com/fluxorio/reactor/pkg/tcp"
)

// writeAttemptTimeout bounds a single non-blocking write attempt; a
// timeout is treated as "would block" rather than a connection error.
const writeAttemptTimeout = 2 * time.Millisecond

type connectResult struct {
	factory ProtocolFactory
	sock    net.Conn
	err     error
}

// Control owns the listener slab, connection slab, timer wheel, and every
// piece of per-connection bookkeeping. It is single-threaded by
// construction: every exported method here is only ever called from
// the dispatch loop in reactor.go, which is the one goroutine allowed to
// mutate this object.
type Control struct {
	cfg Config
	log logging.Logger

	listeners *Slab[Listener]
	conns     *Slab[Connection]
	wheel     *TimerWheel

	notifier Notifier
	notify   *NotifyChannel
	mailbox  Mailbox
	metrics  *Metrics
	tracer   dispatchTracer

	acceptCh  chan acceptedConn
	connectCh chan connectResult

	admission *tcp.AdmissionGate

	// notifyDroppedSeen is the high-water mark already folded into the
	// NotifyDroppedTotal counter.
	notifyDroppedSeen int64

	// toRemove defers slab removal of disconnected connections to the
	// end of the current dispatch frame: a token is never freed for
	// reuse while a callback in the same frame may still hold a
	// reference into its slot.
	toRemove []Token
}

// NewControl constructs a Control. The caller retains ownership of
// notifier and mailbox and must not use them outside Control after this
// call.
func NewControl(cfg Config, notifier Notifier, mailbox Mailbox, metrics *Metrics, log logging.Logger) *Control {
	if log == nil {
		log = logging.NewDefault()
	}
	if mailbox == nil {
		mailbox = DiscardMailbox
	}
	return &Control{
		cfg:       cfg,
		log:       log,
		listeners: NewSlab[Listener](ListenerTokenBase, MaxListeners),
		conns:     NewSlab[Connection](ConnTokenBase, cfg.MaxConnections),
		wheel:     NewTimerWheel(cfg.WheelTick, cfg.WheelSize, cfg.timerCapacity()),
		notifier:  notifier,
		notify:    NewNotifyChannel(cfg.NotifyQueueDepth),
		mailbox:   mailbox,
		metrics:   metrics,
		tracer:    newDispatchTracer(),
		acceptCh:  make(chan acceptedConn, 64),
		connectCh: make(chan connectResult, 64),
		admission: tcp.NewAdmissionGate(cfg.MaxConnections),
	}
}

// Listen binds addr and begins accepting connections, each handed a fresh
// Protocol from factory.
func (c *Control) Listen(addr string, factory ProtocolFactory) (Token, error) {
	sock, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, err
	}
	tok, err := c.listeners.Insert(Listener{Sock: sock, Factory: factory, stop: make(chan struct{})})
	if err != nil {
		sock.Close()
		return 0, err
	}
	l, _ := c.listeners.Get(tok)
	l.Token = tok
	go l.acceptLoop(c.acceptCh)
	return tok, nil
}

// Connect dials addr asynchronously; the resulting connection is folded
// into the control object from the dispatch loop once the dial completes.
func (c *Control) Connect(addr string, factory ProtocolFactory) {
	go func() {
		sock, err := net.DialTimeout("tcp", addr, 10*time.Second)
		c.connectCh <- connectResult{factory: factory, sock: sock, err: err}
	}()
}

// NotifyChannel exposes the cross-thread send side for other goroutines
// to reach into the reactor.
func (c *Control) NotifyChannel() *NotifyChannel { return c.notify }

// Register adopts a pre-constructed, already-connected socket, for
// protocols that dial or hand-craft their own sockets. The connection
// enters the slab Established and is watched for readability immediately.
// Must be called from the dispatch goroutine (or before Run starts).
func (c *Control) Register(sock net.Conn, proto Protocol) (Token, error) {
	tok, err := c.conns.Insert(*newConnection(sock, proto))
	if err != nil {
		return 0, err
	}
	conn, _ := c.conns.Get(tok)
	conn.Token = tok
	conn.PeerAddr = sock.RemoteAddr()
	conn.State = StateEstablished

	if err := c.notifier.Register(tok, sock, conn.Interest); err != nil {
		c.conns.Remove(tok)
		return 0, err
	}
	if c.metrics != nil {
		c.metrics.ActiveConnections.Inc()
	}
	return tok, nil
}

// Interest re-registers tok's readiness mask with the notifier. The mask
// is recomputed from the connection's own state after every dispatch, so
// most callers never need this; it exists for protocols that adopt
// sockets via Register and want to pause reads.
func (c *Control) Interest(tok Token, interest Interest) error {
	conn, ok := c.conns.Get(tok)
	if !ok || conn.terminal {
		return ErrUnknownToken
	}
	conn.Interest = interest
	return c.notifier.Reregister(tok, interest)
}

// Write enqueues buf on tok's output queue under msgID and, when the queue
// was empty, drains as much as the socket accepts right away. It returns
// the bytes handed to the kernel immediately; immediate is false when the
// whole buffer was queued for a later writable event. Must be called from
// the dispatch goroutine — other goroutines use the NotifyChannel instead.
func (c *Control) Write(tok Token, buf Buffer, msgID uint64) (n int, immediate bool, err error) {
	conn, ok := c.conns.Get(tok)
	if !ok {
		return 0, false, ErrUnknownToken
	}
	if conn.terminal || conn.pendingClose {
		return 0, false, ErrClosed
	}
	if conn.outboxBytes+buf.Len() > c.cfg.OutboxByteLimit {
		return 0, false, ErrCapacityExceeded
	}

	wasEmpty := len(conn.Outbuf) == 0
	queued := conn.outboxBytes + buf.Len()
	conn.Outbuf = append(conn.Outbuf, OutEntry{Buf: buf, MsgID: msgID})
	conn.outboxBytes = queued
	if c.metrics != nil {
		c.metrics.QueuedWriteBytes.Add(float64(buf.Len()))
	}

	if !wasEmpty {
		c.syncInterest(tok, conn)
		return 0, false, nil
	}
	c.flushOutbox(tok, conn)
	// flushOutbox may have torn the connection down; re-resolve before
	// touching it again.
	if conn, ok = c.conns.Get(tok); ok {
		n = queued - conn.outboxBytes
		c.syncInterest(tok, conn)
	} else {
		n = queued
	}
	return n, n > 0, nil
}

// Disconnect stops a listener from accepting, or marks a connection Closed
// and tears it down. Disconnecting a token that is already gone is a
// no-op.
func (c *Control) Disconnect(tok Token) {
	if isListenerToken(tok) {
		l, ok := c.listeners.Remove(tok)
		if !ok {
			return
		}
		close(l.stop)
		l.Sock.Close()
		return
	}
	c.disconnect(tok)
}

// Timeout arms a timer on behalf of owner's protocol: after delay its
// OnTimer(id) fires, exactly as if the protocol had returned Timer(delay,
// id) itself. The returned handle is the wheel slot backing the arm. Must
// be called from the dispatch goroutine (or before Run starts).
func (c *Control) Timeout(owner Token, id TimerId, delay time.Duration) (Token, error) {
	conn, ok := c.conns.Get(owner)
	if !ok || conn.terminal {
		return 0, ErrUnknownToken
	}
	if slot, armed := conn.ownedTimers[id]; armed {
		c.wheel.Clear(slot)
	}
	slot, err := c.wheel.Arm(owner, id, delay)
	if err != nil {
		return 0, err
	}
	conn.ownedTimers[id] = slot
	return slot, nil
}

// poll performs exactly one unit of dispatch work, blocking until
// something is ready or stop fires. It is the body RunOnce/Run loop on.
func (c *Control) poll(tick <-chan time.Time, stop <-chan struct{}) bool {
	select {
	case <-stop:
		return false
	case a := <-c.acceptCh:
		c.handleAccept(a)
	case r := <-c.connectCh:
		c.handleConnect(r)
	case ev := <-c.notifier.Events():
		c.handleReady(ev)
	case msg := <-c.notify.C():
		c.handleNotify(msg)
	case <-tick:
		for _, fired := range c.wheel.Advance() {
			c.fireTimer(fired)
		}
	}
	c.flushRemovals()
	return true
}

// flushRemovals applies the removals deferred by disconnect, after the
// outermost dispatch frame has returned and no references into the slots
// remain live.
func (c *Control) flushRemovals() {
	for _, tok := range c.toRemove {
		c.conns.Remove(tok)
	}
	c.toRemove = c.toRemove[:0]
}

func (c *Control) handleAccept(a acceptedConn) {
	lp, ok := c.listeners.Get(a.listener)
	if !ok {
		if a.sock != nil {
			a.sock.Close()
		}
		return
	}
	if a.err != nil {
		c.log.Warnf("listener %s accept error: %v", a.listener, a.err)
		return
	}

	peer := a.sock.RemoteAddr()
	if !c.admission.TryAcquire() {
		c.log.Warnf("admission backpressure, rejecting %s", peer)
		if c.metrics != nil {
			c.metrics.RejectedTotal.Inc()
		}
		a.sock.Close()
		return
	}

	proto := lp.Factory()
	if !proto.OnPreAccept(peer) {
		c.admission.Release()
		if c.metrics != nil {
			c.metrics.RejectedTotal.Inc()
		}
		a.sock.Close()
		return
	}

	tok, err := c.conns.Insert(*newConnection(a.sock, proto))
	if err != nil {
		c.admission.Release()
		c.log.Warnf("connection slab full, rejecting %s: %v", peer, err)
		if c.metrics != nil {
			c.metrics.RejectedTotal.Inc()
		}
		a.sock.Close()
		return
	}
	conn, _ := c.conns.Get(tok)
	conn.Token = tok
	conn.PeerAddr = peer
	conn.State = StateEstablished
	conn.inbound = true

	if err := c.notifier.Register(tok, a.sock, conn.Interest); err != nil {
		c.log.Errorf("notifier register failed for %s: %v", tok, err)
		c.admission.Release()
		c.conns.Remove(tok)
		a.sock.Close()
		return
	}
	if c.metrics != nil {
		c.metrics.AcceptedTotal.Inc()
		c.metrics.ActiveConnections.Inc()
	}

	cmd := proto.OnAccept(tok, peer)
	c.interpret(tok, conn, cmd)
	c.finishDispatch(tok, conn)
}

func (c *Control) handleConnect(r connectResult) {
	if r.err != nil {
		c.log.Warnf("connect failed: %v", r.err)
		return
	}
	if tcpConn, ok := r.sock.(*net.TCPConn); ok {
		if err := tcp.CheckSocketError(tcpConn); err != nil {
			c.log.Warnf("connect to %s completed but socket is unhealthy: %v", r.sock.RemoteAddr(), err)
			r.sock.Close()
			return
		}
	}
	proto := r.factory()
	tok, err := c.conns.Insert(*newConnection(r.sock, proto))
	if err != nil {
		c.log.Warnf("connection slab full, dropping outbound connect: %v", err)
		r.sock.Close()
		return
	}
	conn, _ := c.conns.Get(tok)
	conn.Token = tok
	conn.PeerAddr = r.sock.RemoteAddr()
	conn.State = StateEstablished

	if err := c.notifier.Register(tok, r.sock, conn.Interest); err != nil {
		c.log.Errorf("notifier register failed for %s: %v", tok, err)
		c.conns.Remove(tok)
		r.sock.Close()
		return
	}
	if c.metrics != nil {
		c.metrics.ActiveConnections.Inc()
	}

	cmd := proto.OnConnect(tok)
	c.interpret(tok, conn, cmd)
	c.finishDispatch(tok, conn)
}

func (c *Control) handleReady(ev ReadyEvent) {
	conn, ok := c.conns.Get(ev.Token)
	if !ok {
		c.notifier.Deregister(ev.Token)
		return
	}

	readDispatched := false
	if ev.Interest.has(InterestReadable) && !conn.pendingClose {
		r, ok := c.notifier.Reader(ev.Token)
		if ok {
			_, span := c.tracer.span("on_data", ev.Token)
			cmd := conn.Proto.OnData(r)
			span.End()
			c.interpret(ev.Token, conn, cmd)
			readDispatched = true
		}
	}

	if ev.Interest.has(InterestWritable) && !conn.terminal {
		c.flushOutbox(ev.Token, conn)
	}

	if ev.Interest.has(InterestHup) && !conn.terminal {
		// Peer closed its write side. With nothing left to send the
		// connection goes straight down; with bytes still queued it
		// half-closes and keeps draining until the queue empties.
		if len(conn.Outbuf) == 0 {
			c.disconnect(ev.Token)
			return
		}
		conn.State = StateHalfClosed
		conn.pendingClose = true
	}

	if conn.terminal {
		return
	}
	c.syncInterest(ev.Token, conn)
	if readDispatched && !conn.terminal {
		// Readability is reported oneshot: re-arm it even when the mask
		// itself did not change.
		_ = c.notifier.Reregister(ev.Token, conn.Interest)
	}
}

func (c *Control) handleNotify(msg NotifyMsg) {
	if c.metrics != nil {
		c.metrics.NotifyDepth.Set(float64(c.notify.Depth()))
		if dropped := c.notify.Dropped(); dropped > c.notifyDroppedSeen {
			c.metrics.NotifyDroppedTotal.Add(float64(dropped - c.notifyDroppedSeen))
			c.notifyDroppedSeen = dropped
		}
	}
	if msg.Broadcast {
		var targets []Token
		c.conns.Each(func(tok Token, conn *Connection) {
			if !conn.terminal {
				targets = append(targets, tok)
			}
		})
		for _, tok := range targets {
			conn, ok := c.conns.Get(tok)
			if !ok || conn.terminal || conn.pendingClose {
				continue
			}
			cmd := conn.Proto.Notify(msg.Payload)
			c.interpret(tok, conn, cmd)
			c.finishDispatch(tok, conn)
		}
		return
	}
	conn, ok := c.conns.Get(msg.Token)
	if !ok || conn.terminal || conn.pendingClose {
		return
	}
	cmd := conn.Proto.Notify(msg.Payload)
	c.interpret(msg.Token, conn, cmd)
	c.finishDispatch(msg.Token, conn)
}

func (c *Control) fireTimer(fired timerEntry) {
	conn, ok := c.conns.Get(fired.owner)
	if !ok || conn.terminal {
		return
	}
	delete(conn.ownedTimers, fired.protoID)
	if conn.pendingClose {
		return
	}
	if c.metrics != nil {
		c.metrics.TimerFiresTotal.Inc()
	}
	cmd := conn.Proto.OnTimer(fired.protoID)
	c.interpret(fired.owner, conn, cmd)
	c.finishDispatch(fired.owner, conn)
}

// interpret walks cmd depth-first, left-to-right, applying every leaf to
// conn. A Kill command's buffer is always appended last, even if writes or
// timers appear after it in the tree.
func (c *Control) interpret(tok Token, conn *Connection, cmd *Command) {
	if cmd == nil {
		return
	}
	var killBuf Buffer
	var killed bool

	for _, leaf := range flatten(cmd, nil) {
		switch leaf.kind {
		case cmdWrite:
			if conn.outboxBytes+leaf.buf.Len() > c.cfg.OutboxByteLimit {
				c.log.Warnf("connection %s outbox byte limit reached (%d queued), dropping %d-byte write msg_id=%d",
					tok, conn.outboxBytes, leaf.buf.Len(), leaf.msgID)
				leaf.buf.Release()
				continue
			}
			conn.Outbuf = append(conn.Outbuf, OutEntry{Buf: leaf.buf, MsgID: leaf.msgID})
			conn.outboxBytes += leaf.buf.Len()
			if c.metrics != nil {
				c.metrics.QueuedWriteBytes.Add(float64(leaf.buf.Len()))
			}
		case cmdTimer:
			if slot, ok := conn.ownedTimers[leaf.timerID]; ok {
				c.wheel.Clear(slot)
			}
			slot, err := c.wheel.Arm(tok, leaf.timerID, leaf.delay)
			if err != nil {
				c.log.Warnf("timer wheel full, dropping timer %s for %s: %v", leaf.timerID, tok, err)
				continue
			}
			conn.ownedTimers[leaf.timerID] = slot
		case cmdClear:
			if slot, ok := conn.ownedTimers[leaf.timerID]; ok {
				c.wheel.Clear(slot)
				delete(conn.ownedTimers, leaf.timerID)
			}
		case cmdKill:
			killBuf = leaf.buf
			killed = true
		case cmdOut:
			if err := c.mailbox.Deliver(leaf.outMsg, c); err != nil {
				c.log.Warnf("mailbox delivery failed for %s: %v", tok, err)
			}
		}
	}

	if killed {
		// The final payload is exempt from the outbox cap: Kill's buffer
		// is best-effort but never silently dropped while the peer is
		// still there to receive it.
		conn.pendingClose = true
		conn.Outbuf = append(conn.Outbuf, OutEntry{Buf: killBuf, final: true})
		conn.outboxBytes += killBuf.Len()
		if c.metrics != nil {
			c.metrics.QueuedWriteBytes.Add(float64(killBuf.Len()))
		}
	}
}

// flushOutbox drains as much of conn's output queue as the socket accepts
// without blocking. A write that would block simply stops the
// drain for this tick; the writable interest stays armed.
func (c *Control) flushOutbox(tok Token, conn *Connection) {
	for len(conn.Outbuf) > 0 {
		entry := &conn.Outbuf[0]

		_ = conn.Sock.SetWriteDeadline(time.Now().Add(writeAttemptTimeout))
		n, err := conn.Sock.Write(entry.Buf.Bytes())
		_ = conn.Sock.SetWriteDeadline(time.Time{})

		if n > 0 {
			entry.Buf = entry.Buf.Advance(n)
			conn.outboxBytes -= n
			if c.metrics != nil {
				c.metrics.QueuedWriteBytes.Add(float64(-n))
			}
		}

		if entry.Buf.Len() > 0 {
			if err != nil && !isTimeoutErr(err) {
				c.disconnect(tok)
			}
			return
		}

		msgID, final := entry.MsgID, entry.final
		entry.Buf.Release()
		conn.Outbuf = conn.Outbuf[1:]

		if final {
			c.disconnect(tok)
			return
		}
		cmd := conn.Proto.OnSent(msgID)
		c.interpret(tok, conn, cmd)
	}
}

// finishDispatch runs after a callback's commands have been interpreted:
// anything the callback queued is drained as far as the socket allows
// right now, then the interest mask is recomputed. Every dispatch path
// ends here so a Write command never waits for the next readiness tick to
// make first contact with the kernel.
func (c *Control) finishDispatch(tok Token, conn *Connection) {
	if conn.terminal {
		return
	}
	if len(conn.Outbuf) > 0 {
		c.flushOutbox(tok, conn)
		next, ok := c.conns.Get(tok)
		if !ok {
			return
		}
		conn = next
	}
	c.syncInterest(tok, conn)
}

// syncInterest recomputes conn's interest mask and reregisters it with the
// notifier, unless the connection has gone terminal.
func (c *Control) syncInterest(tok Token, conn *Connection) {
	if conn.terminal {
		return
	}
	if conn.pendingClose && len(conn.Outbuf) == 0 {
		c.disconnect(tok)
		return
	}
	want := conn.wantInterest()
	if want != conn.Interest {
		conn.Interest = want
		_ = c.notifier.Reregister(tok, want)
	}
}

// disconnect tears conn down and delivers OnDisconnect exactly once. It
// is safe to call multiple times for the same token.
func (c *Control) disconnect(tok Token) {
	conn, ok := c.conns.Get(tok)
	if !ok || conn.terminal {
		return
	}
	conn.terminal = true
	if conn.inbound {
		c.admission.Release()
	}

	for _, slot := range conn.timerSlots() {
		c.wheel.Clear(slot)
	}
	conn.ownedTimers = nil

	for _, entry := range conn.Outbuf {
		entry.Buf.Release()
	}
	conn.Outbuf = nil
	if c.metrics != nil && conn.outboxBytes > 0 {
		c.metrics.QueuedWriteBytes.Add(float64(-conn.outboxBytes))
	}
	conn.outboxBytes = 0

	c.notifier.Deregister(tok)
	conn.Sock.Close()
	conn.State = StateClosed

	if c.metrics != nil {
		c.metrics.ActiveConnections.Dec()
	}

	cmd := conn.Proto.OnDisconnect(tok)
	for _, leaf := range flatten(cmd, nil) {
		if leaf.kind == cmdOut {
			if err := c.mailbox.Deliver(leaf.outMsg, c); err != nil {
				c.log.Warnf("mailbox delivery failed for %s: %v", tok, err)
			}
		}
	}

	c.toRemove = append(c.toRemove, tok)
}

// Shutdown closes every listener and connection and stops the notifier.
func (c *Control) Shutdown() {
	var listeners []Token
	c.listeners.Each(func(tok Token, _ *Listener) {
		listeners = append(listeners, tok)
	})
	for _, tok := range listeners {
		c.Disconnect(tok)
	}
	var live []Token
	c.conns.Each(func(tok Token, _ *Connection) {
		live = append(live, tok)
	})
	for _, tok := range live {
		c.disconnect(tok)
	}
	c.flushRemovals()
	c.notify.Close()
	_ = c.notifier.Close()
}

func isTimeoutErr(err error) bool {
	type timeout interface{ Timeout() bool }
	t, ok := err.(timeout)
	return ok && t.Timeout()
}
