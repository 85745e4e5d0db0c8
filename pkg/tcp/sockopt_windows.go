//go:build windows

package tcp

import "net"

// CheckSocketError is a no-op on windows: golang.org/x/sys/unix does not
// build there, and net.TCPConn.SyscallConn combined with a platform-specific
// getsockopt is out of scope for this build.
func CheckSocketError(*net.TCPConn) error {
	return nil
}
