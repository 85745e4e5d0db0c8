package reactor

import "net"

// Listener is the slab entry for a bound listening socket. Accept
// runs on its own goroutine per listener; accepted sockets are handed back
// to the control object over acceptedConn so only the dispatch loop ever
// touches the connection slab.
type Listener struct {
	Token   Token
	Sock    net.Listener
	Factory ProtocolFactory
	stop    chan struct{}
}

type acceptedConn struct {
	listener Token
	sock     net.Conn
	err      error
}

func (l *Listener) acceptLoop(out chan<- acceptedConn) {
	for {
		sock, err := l.Sock.Accept()
		select {
		case out <- acceptedConn{listener: l.Token, sock: sock, err: err}:
		case <-l.stop:
			if sock != nil {
				sock.Close()
			}
			return
		}
		if err != nil {
			return
		}
	}
}
