//go:build !windows

package tcp

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// CheckSocketError reads the socket's SO_ERROR slot and returns it as a Go
// error, or nil if the socket is healthy. A non-blocking connect that
// completes with the fd reported writable still needs this check: the
// three-way handshake can fail (refused, unreachable, reset) after the fd
// goes writable but before any data has moved, and SO_ERROR is the only
// place that failure surfaces.
func CheckSocketError(conn *net.TCPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("tcp: SyscallConn: %w", err)
	}

	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		errno, gerr := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
		if gerr != nil {
			sockErr = gerr
			return
		}
		if errno != 0 {
			sockErr = unix.Errno(errno)
		}
	})
	if ctrlErr != nil {
		return fmt.Errorf("tcp: Control: %w", ctrlErr)
	}
	return sockErr
}
