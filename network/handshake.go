package network

import (
	"context"
	"fmt"
	"net"

	"github.com/flynn/noise"
	log "github.com/sirupsen/logrus"

	"github.com/scorchedearth/scorched/auth"
	"github.com/scorchedearth/scorched/game"
	"github.com/scorchedearth/scorched/serp"
)

// Host opens a room on the relay at address, waits for the other player and
// performs the handshake as the responder. The board is sent to the other
// player as the initial state. Waiting has no timeout, cancel ctx to stop.
func Host(ctx context.Context, address string, secret []byte, board *game.Board) (*Conn, error) {
	hs, err := newHandshake(secret, false)
	if err != nil {
		return nil, err
	}
	id, err := roomID(secret)
	if err != nil {
		return nil, err
	}

	stream, err := serp.Host(ctx, address, id)
	if err != nil {
		return nil, err
	}
	log.Debugf("paired on relay %s, starting handshake", address)

	c, err := withContext(ctx, stream, func() (*Conn, error) {
		return respond(stream, hs)
	})
	if err != nil {
		return nil, err
	}

	if err := c.sendMessage(&InitialState{Board: board}); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Join joins the room for secret on the relay at address and performs the
// handshake as the initiator. It returns the state the host sent.
func Join(ctx context.Context, address string, secret []byte) (*Conn, *InitialState, error) {
	hs, err := newHandshake(secret, true)
	if err != nil {
		return nil, nil, err
	}
	id, err := roomID(secret)
	if err != nil {
		return nil, nil, err
	}

	stream, err := serp.Join(ctx, address, id)
	if err != nil {
		return nil, nil, err
	}
	log.Debugf("paired on relay %s, starting handshake", address)

	var state InitialState
	c, err := withContext(ctx, stream, func() (*Conn, error) {
		c, err := initiate(stream, hs)
		if err != nil {
			return nil, err
		}
		if err := c.recvMessage(&state); err != nil {
			_ = c.Close()
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return c, &state, nil
}

func roomID(secret []byte) (string, error) {
	id, err := auth.HashSecret(secret)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHash, err)
	}
	return id, nil
}

// newHandshake sets up the handshake before touching the relay, so a bad
// secret never costs a room.
func newHandshake(secret []byte, initiator bool) (*noise.HandshakeState, error) {
	if len(secret) != auth.SecretSize {
		return nil, fmt.Errorf("%w: secret must be %d bytes, got %d", ErrHandshakeConfig, auth.SecretSize, len(secret))
	}
	config, err := auth.NewConfig(secret, initiator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeConfig, err)
	}
	hs, err := noise.NewHandshakeState(config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeConfig, err)
	}
	return hs, nil
}

// withContext runs f, closing conn if ctx is done first.
func withContext(ctx context.Context, conn net.Conn, f func() (*Conn, error)) (*Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})

	c, err := f()
	if !stop() {
		if c != nil {
			_ = c.Close()
		}
		return nil, ctx.Err()
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// initiate runs the joiner's side:
//
//	-> e
//	<- e, ee, s, es
//	-> s, se, psk
func initiate(conn net.Conn, hs *noise.HandshakeState) (*Conn, error) {
	buf := make([]byte, MaxFrameSize)

	msg, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoise, err)
	}
	if err := writeFrame(conn, msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	msg, err = readFrame(conn, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if _, _, _, err := hs.ReadMessage(nil, msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoise, err)
	}

	msg, cs1, cs2, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoise, err)
	}
	if cs1 == nil || cs2 == nil {
		return nil, fmt.Errorf("%w: handshake did not complete", ErrNoise)
	}
	if err := writeFrame(conn, msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	// the first cipher state encrypts initiator to responder
	return newConn(conn,
		auth.NewCipherState(cs1.Cipher()),
		auth.NewCipherState(cs2.Cipher()),
		1,
	), nil
}

// respond runs the host's side, the mirror image of initiate.
func respond(conn net.Conn, hs *noise.HandshakeState) (*Conn, error) {
	buf := make([]byte, MaxFrameSize)

	msg, err := readFrame(conn, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if _, _, _, err := hs.ReadMessage(nil, msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoise, err)
	}

	msg, _, _, err = hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoise, err)
	}
	if err := writeFrame(conn, msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	msg, err = readFrame(conn, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	_, cs1, cs2, err := hs.ReadMessage(nil, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoise, err)
	}
	if cs1 == nil || cs2 == nil {
		return nil, fmt.Errorf("%w: handshake did not complete", ErrNoise)
	}

	// recv and send are opposite order from the joiner
	return newConn(conn,
		auth.NewCipherState(cs2.Cipher()),
		auth.NewCipherState(cs1.Cipher()),
		0,
	), nil
}
