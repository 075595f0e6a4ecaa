//go:build linux || darwin || freebsd || netbsd || openbsd

package server

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/scorchedearth/scorched/serp"
)

// peerClosed peeks at the socket without blocking. A waiting host never sends
// anything, so a readable socket means either EOF or an error.
func peerClosed(s *serp.Stream) bool {
	sc, ok := s.Conn.(syscall.Conn)
	if !ok {
		return peekClosed(s)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return true
	}

	closed := false
	var buf [1]byte
	err = raw.Read(func(fd uintptr) bool {
		n, _, rerr := unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		switch {
		case errors.Is(rerr, unix.EAGAIN), errors.Is(rerr, unix.EWOULDBLOCK), errors.Is(rerr, unix.EINTR):
		case rerr != nil:
			closed = true
		case n == 0:
			closed = true
		}
		// never park in the poller
		return true
	})
	if err != nil {
		return true
	}
	return closed
}
