package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"conveyor/internal/config"
)

const (
	kdfSaltLength = 16
	kdfKeyLength  = chacha20poly1305.KeySize
)

// Params controls the argon2 cost of pass-phrase hashing and key derivation.
type Params struct {
	HashMemoryKiB   uint32
	HashIterations  uint32
	HashParallelism uint8
	KDFMemoryKiB    uint32
	KDFIterations   uint32
}

// DefaultParams mirrors the config defaults.
func DefaultParams() Params {
	return Params{
		HashMemoryKiB:   64 * 1024,
		HashIterations:  1,
		HashParallelism: 2,
		KDFMemoryKiB:    64 * 1024,
		KDFIterations:   1,
	}
}

func (p Params) hashParams() *argon2id.Params {
	return &argon2id.Params{
		Memory:      p.HashMemoryKiB,
		Iterations:  p.HashIterations,
		Parallelism: p.HashParallelism,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Cipher encrypts and decrypts account passwords under one derived key.
type Cipher interface {
	Encrypt(plain string) (string, error)
	Decrypt(encoded string) (string, error)
}

// PhraseHasher is the one-way function stored in the KeyStore row.
type PhraseHasher interface {
	Hash(phrase string) (string, error)
	Matches(phrase, hash string) (bool, error)
}

type argonHasher struct {
	params *argon2id.Params
}

func (h argonHasher) Hash(phrase string) (string, error) {
	return argon2id.CreateHash(phrase, h.params)
}

func (h argonHasher) Matches(phrase, hash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(phrase, hash)
}

// aeadCipher is XChaCha20-Poly1305 keyed by argon2id(phrase, salt).
// Ciphertext is base64(nonce || sealed).
type aeadCipher struct {
	key []byte
}

func deriveCipher(phrase string, salt []byte, p Params) (*aeadCipher, error) {
	if len(salt) == 0 {
		return nil, errors.New("derive key: empty salt")
	}
	key := argon2.IDKey([]byte(phrase), salt, p.KDFIterations, p.KDFMemoryKiB, 1, kdfKeyLength)
	return &aeadCipher{key: key}, nil
}

func (c *aeadCipher) Encrypt(plain string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *aeadCipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", errors.New("decrypt: ciphertext too short")
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plain), nil
}

func (c *aeadCipher) wipe() {
	for i := range c.key {
		c.key[i] = 0
	}
}

func newSalt() ([]byte, error) {
	salt := make([]byte, kdfSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// ParamsFrom converts the [vault] config section.
func ParamsFrom(v config.Vault) Params {
	return Params{
		HashMemoryKiB:   v.HashMemoryKiB,
		HashIterations:  v.HashIterations,
		HashParallelism: v.HashParallelism,
		KDFMemoryKiB:    v.KDFMemoryKiB,
		KDFIterations:   v.KDFIterations,
	}
}
