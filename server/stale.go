package server

import (
	"errors"
	"os"
	"time"

	"github.com/scorchedearth/scorched/serp"
)

// peekWait is how long the portable probe waits for the socket. An already
// expired deadline fails reads before they reach the socket, so it has to be
// in the future.
const peekWait = time.Millisecond

// peekClosed is the portable probe: a short read either times out (peer
// alive) or reports EOF/an error (peer gone). Anything that does arrive stays
// in the stream's buffer.
func peekClosed(s *serp.Stream) bool {
	if err := s.SetReadDeadline(time.Now().Add(peekWait)); err != nil {
		return true
	}
	defer s.SetReadDeadline(time.Time{})

	_, err := s.Peek(1)
	if err == nil || errors.Is(err, os.ErrDeadlineExceeded) {
		return false
	}
	return true
}
