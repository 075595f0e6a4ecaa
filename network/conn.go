package network

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/scorchedearth/scorched/auth"
)

// Conn is an established encrypted channel to the other player.
type Conn struct {
	conn net.Conn

	sendMu sync.Mutex
	send   *auth.CipherState
	wbuf   []byte

	// owned by the single reader
	recv *auth.CipherState
	rbuf []byte

	playerNum int
}

func newConn(conn net.Conn, send, recv *auth.CipherState, playerNum int) *Conn {
	return &Conn{
		conn:      conn,
		send:      send,
		recv:      recv,
		wbuf:      make([]byte, 0, headerSize+MaxFrameSize),
		rbuf:      make([]byte, MaxFrameSize),
		playerNum: playerNum,
	}
}

// Send encrypts payload and writes it as one frame. It's safe to call from
// several goroutines; frames go out whole and in the order Send acquired the
// connection.
func (c *Conn) Send(payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrNoise, len(payload), MaxPayloadSize)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	// leave room for the length, the ciphertext is appended after it
	frame, err := c.send.Encrypt(c.wbuf[:headerSize], nil, payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoise, err)
	}
	binary.BigEndian.PutUint16(frame, uint16(len(frame)-headerSize))

	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("%w: %w", ErrPeerDisconnected, err)
	}
	return nil
}

// Recv reads and decrypts the next frame. The returned slice is only valid
// until the next call to Recv. Recv must not be called concurrently.
func (c *Conn) Recv() ([]byte, error) {
	ciphertext, err := readFrame(c.conn, c.rbuf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPeerDisconnected, err)
	}

	// decrypt in place
	plaintext, err := c.recv.Decrypt(ciphertext[:0], nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoise, err)
	}
	return plaintext, nil
}

// PlayerNum returns 0 for the host and 1 for the player who joined.
func (c *Conn) PlayerNum() int {
	return c.playerNum
}

// RemoteAddr returns the address of the relay.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
