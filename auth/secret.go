package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/argon2"
)

// SecretSize is the length of generated secrets, which is also the PSK size
// required by Noise.
const SecretSize = 32

// Both peers have to derive the same room key from the secret, so the salt
// can't be random.
var secretSalt = []byte("scorchedearth")

// Argon2i parameters of the room key.
const (
	hashTime    = 3
	hashMemory  = 4096
	hashThreads = 1
	hashKeyLen  = 32
)

// ErrHash is returned when a secret can't be hashed into a room key
var ErrHash = errors.New("auth: can't hash secret")

// HashSecret derives the room key the relay sees from the shared secret.
// The result is an encoded argon2i hash, so the secret itself never leaves
// the peer.
func HashSecret(secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("%w: empty secret", ErrHash)
	}

	key := argon2.Key(secret, secretSalt, hashTime, hashMemory, hashThreads, hashKeyLen)

	return fmt.Sprintf("$argon2i$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, hashMemory, hashTime, hashThreads,
		base64.RawStdEncoding.EncodeToString(secretSalt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// GenerateSecret returns a random room id made of ASCII digits, easy to read
// out loud and usable as a PSK as is.
func GenerateSecret() ([]byte, error) {
	secret := make([]byte, SecretSize)
	ten := big.NewInt(10)
	for i := range secret {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return nil, err
		}
		secret[i] = '0' + byte(d.Int64())
	}
	return secret, nil
}
