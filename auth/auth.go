package auth

import (
	"crypto/rand"
	"errors"

	"github.com/flynn/noise"
	"golang.org/x/crypto/curve25519"
)

// PSKPlacement is the position of the psk token in the XX pattern: after the
// third handshake message, binding the whole session to the shared secret.
const PSKPlacement = 3

var (
	// ErrMaxNonce is returned when a CipherState has used up its nonces
	ErrMaxNonce = errors.New("auth: nonce space exhausted")

	noiseConfig = noise.Config{
		CipherSuite:           noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s),
		Random:                rand.Reader,
		Pattern:               noise.HandshakeXX,
		PresharedKeyPlacement: PSKPlacement,
		Prologue:              []byte("scorched earth"),
	}
)

// Key stores a curve25519 key
type Key [32]byte

// some curve25519 magic, make sure the key is secure
func (k *Key) clamp() {
	k[0] &= 248
	k[31] = (k[31] & 127) | 64
}

// NewKeypair generates a fresh static keypair for one connection attempt.
func NewKeypair() (noise.DHKey, error) {
	var priv Key
	if _, err := rand.Read(priv[:]); err != nil {
		return noise.DHKey{}, err
	}
	priv.clamp()

	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return noise.DHKey{}, err
	}
	return noise.DHKey{Private: priv[:], Public: pub}, nil
}

// NewConfig initializes a new noise.Config for one side of the handshake.
// The secret is used as the pre-shared key; it has to be exactly 32 bytes, which
// noise.NewHandshakeState enforces.
func NewConfig(secret []byte, initiator bool) (config noise.Config, err error) {
	config = noiseConfig
	config.Initiator = initiator
	config.PresharedKey = secret
	config.StaticKeypair, err = NewKeypair()
	return
}

// CipherState is an alternate implementation of noise.CipherState
// that exposes the nonce counter. The counter only ever moves forward.
type CipherState struct {
	c noise.Cipher
	n uint64
}

// NewCipherState initializes a new CipherState
func NewCipherState(c noise.Cipher) *CipherState {
	return &CipherState{c: c}
}

// Encrypt seals plaintext, appending the result to out.
func (s *CipherState) Encrypt(out, ad, plaintext []byte) ([]byte, error) {
	if s.n > noise.MaxNonce {
		return nil, ErrMaxNonce
	}
	out = s.c.Encrypt(out, s.n, ad, plaintext)
	s.n++
	return out, nil
}

// Decrypt opens ciphertext, appending the result to out. The nonce is only
// consumed when the ciphertext authenticates.
func (s *CipherState) Decrypt(out, ad, ciphertext []byte) ([]byte, error) {
	if s.n > noise.MaxNonce {
		return nil, ErrMaxNonce
	}
	out, err := s.c.Decrypt(out, s.n, ad, ciphertext)
	if err != nil {
		return nil, err
	}
	s.n++
	return out, nil
}

// Nonce returns the nonce value inside CipherState
func (s *CipherState) Nonce() uint64 {
	return s.n
}
