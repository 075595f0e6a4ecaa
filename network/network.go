// Package network establishes the encrypted channel between two players and
// carries their messages over it.
//
// Both players meet on a relay under a room id derived from their shared
// secret, run a Noise_XXpsk3 handshake keyed with that same secret and then
// exchange length framed ciphertexts. Every frame on the wire is a two byte
// big endian length followed by that many bytes.
package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxFrameSize is the largest frame body the length prefix can describe
	MaxFrameSize = 65535
	// TagSize is the size of the AEAD tag appended to every ciphertext
	TagSize = 16
	// MaxPayloadSize is the largest plaintext that fits in one frame
	MaxPayloadSize = MaxFrameSize - TagSize

	headerSize = 2
)

var (
	// ErrHandshakeConfig is returned when the handshake can't be set up
	ErrHandshakeConfig = errors.New("network: invalid handshake configuration")
	// ErrEncode is returned when a message can't be serialized
	ErrEncode = errors.New("network: can't encode message")
	// ErrDecode is returned when a message can't be deserialized
	ErrDecode = errors.New("network: can't decode message")
	// ErrIO is returned when the connection fails during the handshake
	ErrIO = errors.New("network: i/o error")
	// ErrNoise is returned when a handshake message or frame doesn't
	// authenticate, or a payload can't be encrypted
	ErrNoise = errors.New("network: noise protocol error")
	// ErrHash is returned when the secret can't be turned into a room id
	ErrHash = errors.New("network: can't hash secret")
	// ErrPeerDisconnected is returned when the peer goes away after the
	// channel is established
	ErrPeerDisconnected = errors.New("network: peer disconnected")
	// ErrOutOfTurn is returned when a turn is played by the wrong player
	ErrOutOfTurn = errors.New("network: move played out of turn")
)

// writeFrame prefixes msg with its length and writes it in one call.
func writeFrame(w io.Writer, msg []byte) error {
	if len(msg) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds %d", len(msg), MaxFrameSize)
	}
	frame := make([]byte, headerSize+len(msg))
	binary.BigEndian.PutUint16(frame, uint16(len(msg)))
	copy(frame[headerSize:], msg)
	_, err := w.Write(frame)
	return err
}

// readFrame reads one frame into buf, which must hold MaxFrameSize bytes, and
// returns the body.
func readFrame(r io.Reader, buf []byte) ([]byte, error) {
	if _, err := io.ReadFull(r, buf[:headerSize]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(buf[:headerSize]))
	if _, err := io.ReadFull(r, buf[:n]); err != nil {
		if errors.Is(err, io.EOF) {
			// the header promised more than we got
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf[:n], nil
}
