package serp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	// AckTimeout bounds the wait for the relay's answer to a request. The
	// relay answers right away, so a slow answer means it's not there.
	AckTimeout = 5 * time.Second
	// ConnectTimeout bounds dialing the relay when joining a room
	ConnectTimeout = 15 * time.Second
)

// Host opens the room id on the relay at address and blocks until another
// peer joins it. Waiting for the partner has no timeout; cancel ctx to give up.
func Host(ctx context.Context, address, id string) (*Stream, error) {
	var d net.Dialer
	return request(ctx, &d, address, MethodHost, id)
}

// Join connects to the room id hosted on the relay at address.
func Join(ctx context.Context, address, id string) (*Stream, error) {
	d := net.Dialer{Timeout: ConnectTimeout}
	return request(ctx, &d, address, MethodConn, id)
}

func request(ctx context.Context, d *net.Dialer, address string, m Method, id string) (*Stream, error) {
	log.Debugf("connecting to relay %s", address)
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	log.Debugf("connected to relay %s", address)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	s, err := rendezvous(NewStream(conn), m, id)
	if err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if !stop() {
		// ctx fired and closed the connection right as pairing finished
		return nil, ctx.Err()
	}
	return s, nil
}

func rendezvous(s *Stream, m Method, id string) (*Stream, error) {
	if err := s.WriteString(FormatRequest(m, id)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	// the relay should respond with "ok" soon
	if err := s.SetReadDeadline(time.Now().Add(AckTimeout)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	resp, err := s.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoAck, err)
	}

	switch resp {
	case RespOK:
	case RespInvalid:
		return nil, ErrInvalidRequest
	case RespFail:
		if m == MethodHost {
			return nil, ErrRoomExists
		}
		return nil, ErrRoomDoesntExist
	default:
		return nil, fmt.Errorf("%w: unexpected response %q", ErrNoAck, resp)
	}

	// waiting for the other side can take a lot longer, so disable the timeout
	if err := s.SetReadDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	resp, err = s.ReadLine()
	switch {
	case errors.Is(err, io.EOF):
		return nil, ErrConnectionBroke
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	case resp != RespConnected:
		return nil, fmt.Errorf("%w: unexpected response %q", ErrConnectionBroke, resp)
	}

	return s, nil
}
