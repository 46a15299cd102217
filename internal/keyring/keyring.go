// Package keyring encrypts chat message bodies at rest.
//
// Every configured secret is expanded with HKDF-SHA256 into a 256-bit
// XChaCha20-Poly1305 key identified by a numeric generation.  New data is
// sealed with the active generation; any configured generation can open.
// Sealed values are self-describing ("v<gen>.<base64url(nonce||ct)>") so
// rows written before a rotation stay readable as long as the old secret is
// kept in the configuration.
package keyring

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrNoActiveKey        = errors.New("keyring: active generation not configured")
	ErrUnknownGeneration  = errors.New("keyring: unknown key generation")
	ErrMalformed          = errors.New("keyring: malformed sealed value")
	ErrAuthenticationFail = errors.New("keyring: message authentication failed")
)

const hkdfInfo = "venue-chat/message/v"

// Keyring holds one AEAD per key generation.
type Keyring struct {
	active uint32
	aeads  map[uint32]cipher.AEAD
}

// New derives the per-generation keys.  secrets must contain active.
func New(secrets map[uint32]string, active uint32) (*Keyring, error) {
	if _, ok := secrets[active]; !ok {
		return nil, ErrNoActiveKey
	}
	k := &Keyring{active: active, aeads: make(map[uint32]cipher.AEAD, len(secrets))}
	for gen, secret := range secrets {
		if secret == "" {
			return nil, fmt.Errorf("keyring: empty secret for generation %d", gen)
		}
		key := make([]byte, chacha20poly1305.KeySize)
		r := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo+strconv.FormatUint(uint64(gen), 10)))
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("keyring: derive generation %d: %w", gen, err)
		}
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("keyring: generation %d: %w", gen, err)
		}
		k.aeads[gen] = aead
	}
	return k, nil
}

// Active returns the generation used by Seal.
func (k *Keyring) Active() uint32 { return k.active }

// Seal encrypts plaintext with the active generation.  additional is
// authenticated but not stored; Open must be given the same bytes.
func (k *Keyring) Seal(plaintext string, additional []byte) (string, error) {
	aead := k.aeads[k.active]
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("keyring: nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, []byte(plaintext), additional)
	return "v" + strconv.FormatUint(uint64(k.active), 10) + "." + base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (k *Keyring) Open(sealed string, additional []byte) (string, error) {
	head, body, ok := strings.Cut(sealed, ".")
	if !ok || len(head) < 2 || head[0] != 'v' {
		return "", ErrMalformed
	}
	gen, err := strconv.ParseUint(head[1:], 10, 32)
	if err != nil {
		return "", ErrMalformed
	}
	aead, ok := k.aeads[uint32(gen)]
	if !ok {
		return "", ErrUnknownGeneration
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil || len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrMalformed
	}
	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, additional)
	if err != nil {
		return "", ErrAuthenticationFail
	}
	return string(pt), nil
}
