// Package roomcrypto derives room keys from passphrases and seals message
// bodies with AES-256-GCM.
//
// The salt is fixed for the whole application, so equal passphrases always
// yield equal keys. That equality is the only thing that makes two sessions
// share a room.
package roomcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Marker prefixes every encrypted content blob.
	Marker = "ENC:"

	Iterations = 100_000
	KeySize    = 32
	NonceSize  = 12
)

// salt must never change once messages exist: every stored blob was sealed
// under keys derived with it.
var salt = []byte("go-securechat/room-key/v1")

var ErrNilKey = errors.New("roomcrypto: nil key")

// Key is a derived room key together with its ready-to-use AEAD.
type Key struct {
	raw  [KeySize]byte
	aead cipher.AEAD
}

// DeriveKey runs PBKDF2-HMAC-SHA256 over passphrase.
func DeriveKey(passphrase string) *Key {
	k := &Key{}
	copy(k.raw[:], pbkdf2.Key([]byte(passphrase), salt, Iterations, KeySize, sha256.New))

	block, err := aes.NewCipher(k.raw[:])
	if err != nil {
		// only possible with a bad key length
		panic(fmt.Sprintf("roomcrypto: aes: %v", err))
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		panic(fmt.Sprintf("roomcrypto: gcm: %v", err))
	}
	k.aead = aead
	return k
}

// Bytes returns a copy of the raw key material.
func (k *Key) Bytes() []byte {
	out := make([]byte, KeySize)
	copy(out, k.raw[:])
	return out
}

func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return k == other
	}
	return subtle.ConstantTimeCompare(k.raw[:], other.raw[:]) == 1
}

// IsEncrypted reports whether content carries the ciphertext marker.
func IsEncrypted(content string) bool {
	return strings.HasPrefix(content, Marker)
}

// Encrypt seals plaintext under key with a fresh random nonce and returns
// Marker + base64(nonce || ciphertext || tag).
func Encrypt(plaintext string, key *Key) (string, error) {
	if key == nil {
		return "", ErrNilKey
	}

	buf := make([]byte, NonceSize, NonceSize+len(plaintext)+key.aead.Overhead())
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("roomcrypto: nonce: %w", err)
	}
	sealed := key.aead.Seal(buf, buf[:NonceSize], []byte(plaintext), nil)
	return Marker + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens blob under key. Content without the marker is legacy
// plaintext and comes back unchanged. Every failure, whether a wrong key,
// bad base64 or a tag mismatch, yields ("", false) and nothing else.
func Decrypt(blob string, key *Key) (string, bool) {
	if !IsEncrypted(blob) {
		return blob, true
	}
	if key == nil {
		return "", false
	}

	raw, err := base64.StdEncoding.DecodeString(blob[len(Marker):])
	if err != nil || len(raw) < NonceSize+key.aead.Overhead() {
		return "", false
	}
	plain, err := key.aead.Open(nil, raw[:NonceSize], raw[NonceSize:], nil)
	if err != nil {
		return "", false
	}
	return string(plain), true
}
