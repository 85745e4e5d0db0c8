//go:build !windows

package tcp

import (
	"net"
	"testing"
)

func TestCheckSocketError_HealthyConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
		}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	tcpConn, ok := client.(*net.TCPConn)
	if !ok {
		t.Fatalf("expected *net.TCPConn, got %T", client)
	}
	if err := CheckSocketError(tcpConn); err != nil {
		t.Fatalf("CheckSocketError on a healthy connection = %v, want nil", err)
	}
}
